// Package sse 实现 Server-Sent Events 的解析、编码与转发。
package sse

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// Event 是一个完整的 SSE 事件。Event 为空时按协议视为 "message"。
type Event struct {
	Event string
	Data  string
	ID    string
}

// Parser 是一个推送式的解析状态机：
// 缓冲字节 → 按空行切分事件块 → 按行拆出 event/data/id 字段 → 产出 Event。
// 输入可以在任意字节位置被截断，未完成的部分留在缓冲区等待下一次 Feed。
type Parser struct {
	buf bytes.Buffer

	// 当前事件块内已经解析出的字段
	event   string
	id      string
	data    []string
	hasData bool
}

// NewParser 创建一个空的 Parser。
func NewParser() *Parser {
	return &Parser{}
}

// Feed 写入一段字节并返回其中已经完整的事件。
func (p *Parser) Feed(chunk []byte) []Event {
	p.buf.Write(chunk)

	var events []Event
	for {
		line, ok := p.nextLine()
		if !ok {
			break
		}
		if line == "" {
			if ev, ok := p.dispatch(); ok {
				events = append(events, ev)
			}
			continue
		}
		p.processLine(line)
	}
	return events
}

// nextLine 从缓冲区取出一行（不含换行符），兼容 \n 与 \r\n。
func (p *Parser) nextLine() (string, bool) {
	raw := p.buf.Bytes()
	idx := bytes.IndexByte(raw, '\n')
	if idx < 0 {
		return "", false
	}
	line := string(raw[:idx])
	p.buf.Next(idx + 1)
	return strings.TrimSuffix(line, "\r"), true
}

func (p *Parser) processLine(line string) {
	// 以冒号开头的是注释行
	if strings.HasPrefix(line, ":") {
		return
	}

	field, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}

	switch field {
	case "event":
		p.event = value
	case "data":
		p.data = append(p.data, value)
		p.hasData = true
	case "id":
		p.id = value
	}
}

func (p *Parser) dispatch() (Event, bool) {
	defer p.reset()
	if !p.hasData && p.event == "" {
		return Event{}, false
	}
	return Event{
		Event: p.event,
		Data:  strings.Join(p.data, "\n"),
		ID:    p.id,
	}, true
}

func (p *Parser) reset() {
	p.event = ""
	p.id = ""
	p.data = p.data[:0]
	p.hasData = false
}

// Decoder 在 io.Reader 之上按需驱动 Parser。
type Decoder struct {
	r       io.Reader
	parser  *Parser
	pending []Event
	buf     []byte
	err     error
}

// NewDecoder 创建一个读取 r 的 Decoder。
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		r:      r,
		parser: NewParser(),
		buf:    make([]byte, 4096),
	}
}

// Next 返回下一个完整事件。流结束时返回 io.EOF，结尾处不完整的事件块会被丢弃。
func (d *Decoder) Next() (Event, error) {
	for len(d.pending) == 0 {
		if d.err != nil {
			return Event{}, d.err
		}
		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.pending = append(d.pending, d.parser.Feed(d.buf[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.err = io.EOF
			} else {
				d.err = err
			}
		}
	}
	ev := d.pending[0]
	d.pending = d.pending[1:]
	return ev, nil
}
