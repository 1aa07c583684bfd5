package apperr

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindOfWrappedError(t *testing.T) {
	base := NotFound("项目 %d 不存在", 7)
	wrapped := errors.Wrap(base, "导出数据集")

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindNotFound))
	assert.Equal(t, "项目 7 不存在", Message(wrapped))
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("disk full")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.Equal(t, "服务器内部错误", Message(err))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestExternalToolKeepsCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := ExternalTool(cause, "抽帧失败")

	assert.Equal(t, KindExternalTool, KindOf(err))
	assert.Equal(t, cause, errors.Cause(err))
	assert.Contains(t, err.Error(), "exit status 1")
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(KindNotFound))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(KindValidation))
	assert.Equal(t, http.StatusUnprocessableEntity, HTTPStatus(KindExhaustedInput))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(KindInternal))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(KindInternal, nil, "noop"))
}
