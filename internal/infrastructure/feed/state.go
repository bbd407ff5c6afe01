package feed

// State 单个交易对连接的生命周期
//
//	Disconnected -> Connecting -> Connected -> Backoff -> Connecting ...
//	                                        \-> Exhausted（超过最大重试次数，终态）
//	任意状态 ctx 取消 -> Closed（终态）
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBackoff
	StateExhausted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBackoff:
		return "backoff"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal 终态不会再发起连接
func (s State) Terminal() bool {
	return s == StateExhausted || s == StateClosed
}
