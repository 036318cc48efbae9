package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// 对外输出的事件名
const (
	EventMeta  = "meta"
	EventToken = "token"
	EventDone  = "done"
	EventError = "error"
)

// SetHeaders 设置事件流响应头，必须在第一次写入 body 之前调用。
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// Encode 把事件写成 "event: x\ndata: y\n\n"，多行 data 拆成多条 data 行。
func Encode(w io.Writer, ev Event) error {
	var b strings.Builder
	if ev.ID != "" {
		b.WriteString("id: ")
		b.WriteString(ev.ID)
		b.WriteByte('\n')
	}
	if ev.Event != "" {
		b.WriteString("event: ")
		b.WriteString(ev.Event)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// JSONEvent 把 v 序列化为 data 构造一个事件。
func JSONEvent(name string, v any) (Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s event: %w", name, err)
	}
	return Event{Event: name, Data: string(data)}, nil
}

// EncodeJSON 是 JSONEvent + Encode 的组合。
func EncodeJSON(w io.Writer, name string, v any) error {
	ev, err := JSONEvent(name, v)
	if err != nil {
		return err
	}
	return Encode(w, ev)
}

// Relay 先写出唯一一个 meta 事件，再按到达顺序转发 src 中的事件，每个事件后 flush。
// src 关闭即结束；ctx 结束（客户端断开）时调用 cancel 中止上游读取并返回 ctx.Err()。
// Relay 自身不产生 done 事件，done 由上游流自己编码在 src 里。
func Relay(ctx context.Context, w io.Writer, flush func(), meta any, src <-chan Event, cancel func()) error {
	if flush == nil {
		flush = func() {}
	}
	if err := EncodeJSON(w, EventMeta, meta); err != nil {
		cancel()
		return err
	}
	flush()

	for {
		select {
		case <-ctx.Done():
			cancel()
			return ctx.Err()
		case ev, ok := <-src:
			if !ok {
				return nil
			}
			if err := Encode(w, ev); err != nil {
				cancel()
				return err
			}
			flush()
		}
	}
}
