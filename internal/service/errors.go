package service

import (
	"errors"

	"github.com/ProfessorAbraham/chereka-customer-support/internal/store"
)

// 业务层通用错误，handler 与 ws 路由根据错误类型映射到 HTTP 状态码或错误事件。
var (
	ErrNotFound       = errors.New("not found")
	ErrAccessDenied   = errors.New("access denied")
	ErrInvalidContent = errors.New("invalid content")
	ErrInvalidState   = errors.New("invalid state")
)

// Kind is the wire name of an error class.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindAccessDenied   Kind = "access_denied"
	KindInvalidContent Kind = "invalid_content"
	KindInvalidState   Kind = "invalid_state"
	KindRateLimited    Kind = "rate_limited"
	// KindInternal covers storage and other operational failures; callers
	// may retry.
	KindInternal Kind = "internal"
)

func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, ErrInvalidContent):
		return KindInvalidContent
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	default:
		return KindInternal
	}
}

// storeErr translates store sentinels into the chat taxonomy.
func storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrInvalidState
	default:
		return err
	}
}
