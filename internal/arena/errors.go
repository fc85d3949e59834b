package arena

import (
	"errors"

	"github.com/park285/cheese-arena/internal/settlement"
	"github.com/park285/cheese-arena/pkg/arenadto"
)

type staticErr string

func (e staticErr) Error() string { return string(e) }
func errf(s string) error         { return staticErr(s) }

// 에러 문자열은 그대로 클라이언트 error 이벤트의 code 로 나간다.
var (
	ErrInvalidRequest = errf(arenadto.CodeInvalidRequest)
	ErrInvalidMove    = errf(arenadto.CodeInvalidMove)
	ErrUnknownMode    = errf(arenadto.CodeUnknownMode)
	ErrNotYourTurn    = errf(arenadto.CodeNotYourTurn)
	ErrNotInGame      = errf(arenadto.CodeNotInGame)
	ErrBusy           = errf(arenadto.CodeBusy)
	ErrPairingFailed  = errf(arenadto.CodePairingFailed)
	ErrClosed         = errf("arena closed")
)

// codeOf maps an error to the client-facing error code.
func codeOf(err error) string {
	var ie *settlement.IneligibleError
	if errors.As(err, &ie) {
		if ie.Reason == settlement.ReasonInsufficientBalance {
			return arenadto.CodeInsufficientBalance
		}
		return arenadto.CodeNotEligible
	}
	var se staticErr
	if errors.As(err, &se) {
		if se == ErrClosed {
			return arenadto.CodeBusy
		}
		return string(se)
	}
	return arenadto.CodeInvalidRequest
}

// detailErr carries a human-readable cause next to a client error code.
type detailErr struct {
	code   error
	detail string
}

func (e *detailErr) Error() string { return e.code.Error() + ": " + e.detail }
func (e *detailErr) Unwrap() error { return e.code }

func wrapDetail(code, cause error) error {
	return &detailErr{code: code, detail: cause.Error()}
}

func detailOf(err error) string {
	var de *detailErr
	if errors.As(err, &de) {
		return de.detail
	}
	return err.Error()
}
