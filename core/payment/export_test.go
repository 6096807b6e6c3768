package payment

// SetReceiptNumberFunc replaces the receipt number generator until the returned func is called.
func SetReceiptNumberFunc(fn func() string) (restore func()) {
	old := newReceiptNumber
	newReceiptNumber = fn
	return func() { newReceiptNumber = old }
}
