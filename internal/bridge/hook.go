package bridge

import "context"

// Call kinds reported to hooks.
const (
	CallPublic   = "public_call"
	CallNative   = "invoke_native"
	CallFakeInit = "fake_init"
)

// CallInfo describes an observed call.
type CallInfo struct {
	Kind  string // CallPublic, CallNative or CallFakeInit
	Name  string // callback or native name
	Epoch string // connection epoch id
}

// HookToken is returned by OnCallStart and handed back to OnCallEnd. Only
// the Hook that created it interprets it.
type HookToken interface{}

// Hook observes public calls and native invocations, e.g. for tracing.
type Hook interface {
	OnCallStart(ctx context.Context, info CallInfo) (context.Context, HookToken)
	OnCallEnd(ctx context.Context, token HookToken, info CallInfo, err error)
}

type nopHook struct{}

func (nopHook) OnCallStart(ctx context.Context, _ CallInfo) (context.Context, HookToken) {
	return ctx, nil
}

func (nopHook) OnCallEnd(context.Context, HookToken, CallInfo, error) {}
