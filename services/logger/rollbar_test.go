package logsvc

import (
	"bytes"
	"fmt"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/user"
)

func TestRollbarLogger(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := NewRollbarLogger(log.New(buf, "", 0), &core.Config{Env: "TEST", Debug: true})

	usr := user.User{ID: 3, Username: "clerk"}
	logger.Info("payment recorded", map[string]interface{}{"receipt": "AB12CD34"}, usr)
	logger.Error("sending email", fmt.Errorf("timeout")) // no stack trace with %+v

	want := "INFO: payment recorded\n" +
		"map[receipt:AB12CD34]\n" +
		"ERROR: sending email\n" +
		"timeout\n"
	assert.Equal(t, want, buf.String())
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger := RollbarLogger{}
	err := errors.New("boom")
	extras := map[string]interface{}{"student_id": 4}

	args := logger.prepare("msg", []interface{}{err, user.User{ID: 1}, extras, user.User{ID: 2}})
	assert.Equal(t, []interface{}{"msg", err, extras}, args)
}
