// Package eventbus 是行程房间的客户端：维护一条到房间的双向连接，
// 负责加入/离开、断线重连，并把推送的事件分发给调用方。
package eventbus

import (
	"context"

	"github.com/hasanmk52/terra-voyage-sub003/internal/domain"
)

// Channel 是最小的双向传输抽象。重连策略只依赖这个接口，
// 因此可以在没有真实网络的情况下测试，也可以换成其他传输实现。
type Channel interface {
	// Connect 建立连接。失败时返回错误，可以被再次调用。
	Connect(ctx context.Context) error
	// Disconnect 主动关闭连接，不触发 OnError 回调。
	Disconnect() error
	Send(ctx context.Context, env domain.Envelope) error
	// OnMessage 注册收到消息时的回调，需在 Connect 之前调用。
	OnMessage(fn func(domain.Envelope))
	// OnError 注册连接意外中断时的回调，需在 Connect 之前调用。
	OnError(fn func(error))
}
