package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/presentio/presentio/pkg/constants"
)

func TestTaxonomyCodes(t *testing.T) {
	cases := []struct {
		err    Error
		code   constants.ErrorCode
		status int
	}{
		{ErrDeviceOffline("d1"), constants.ErrCodeDeviceOffline, http.StatusConflict},
		{ErrConnectionLost("d1"), constants.ErrCodeConnectionLost, http.StatusBadGateway},
		{ErrUnreachable("10.0.0.1:7070"), constants.ErrCodeUnreachable, http.StatusBadGateway},
		{ErrAuthRejected("d1"), constants.ErrCodeAuthRejected, http.StatusBadGateway},
		{ErrDeviceBusy("d1"), constants.ErrCodeDeviceBusy, http.StatusConflict},
		{ErrPoorQuality("smudged"), constants.ErrCodePoorQuality, http.StatusUnprocessableEntity},
		{ErrTimeout("ready"), constants.ErrCodeTimeout, http.StatusGatewayTimeout},
		{ErrTemplateCaptureError("d1"), constants.ErrCodeTemplateCaptureError, http.StatusBadGateway},
		{ErrStudentNotOnDevice("s1", "d1"), constants.ErrCodeStudentNotOnDevice, http.StatusPreconditionFailed},
		{ErrNotCancellable("x", constants.SessionStatusCompleted), constants.ErrCodeNotCancellable, http.StatusConflict},
		{ErrTemplateUnreadable("bad key"), constants.ErrCodeTemplateUnreadable, http.StatusInternalServerError},
		{ErrInternal("boom"), constants.ErrCodeInternal, http.StatusInternalServerError},
		{ErrInvalidRequest("bad"), constants.ErrCodeInvalidRequest, http.StatusBadRequest},
		{ErrUnauthorized("no token"), constants.ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrForbidden("other tenant"), constants.ErrCodeForbidden, http.StatusForbidden},
		{ErrNotFound("session", "id"), constants.ErrCodeNotFound, http.StatusNotFound},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, tc.err.Code())
		assert.Equal(t, tc.status, tc.err.HTTPStatus())
		assert.NotEmpty(t, tc.err.Error())
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := Wrap(cause, constants.ErrCodeInternal, "failed to connect")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, constants.ErrCodeInternal, err.Code())
}

func TestAsThroughWrapping(t *testing.T) {
	inner := ErrDeviceBusy("d1")
	outer := fmt.Errorf("acquire: %w", inner)

	e, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, constants.ErrCodeDeviceBusy, e.Code())
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, constants.ErrCodeTimeout, CodeOf(ErrTimeout("capturing")))
	assert.Equal(t, constants.ErrCodeInternal, CodeOf(fmt.Errorf("plain")))
	assert.True(t, IsCode(ErrDeviceOffline("d1"), constants.ErrCodeDeviceOffline))
	assert.False(t, IsCode(ErrDeviceOffline("d1"), constants.ErrCodeDeviceBusy))
}

func TestMetadata(t *testing.T) {
	err := ErrStudentNotOnDevice("s1", "d1")
	md := err.Metadata()
	assert.Equal(t, "s1", md["student_id"])
	assert.Equal(t, "d1", md["device_id"])

	err = err.WithMetadata("finger_index", 3)
	assert.Equal(t, 3, err.Metadata()["finger_index"])
}
