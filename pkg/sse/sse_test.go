package sse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParserSplitsEventsOnBlankLines(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("event: token\ndata: {\"content\":\"Hi\"}\n\nevent: done\ndata: {}\n\n"))

	require.Len(t, events, 2)
	assert.Equal(t, Event{Event: "token", Data: `{"content":"Hi"}`}, events[0])
	assert.Equal(t, Event{Event: "done", Data: "{}"}, events[1])
}

func TestParserHandlesArbitraryChunkBoundaries(t *testing.T) {
	stream := "data: {\"a\":1}\r\n\r\n: keep-alive\n\nid: 7\nevent: token\ndata: line one\ndata: line two\n\ndata: [DONE]\n\n"

	for split := 1; split < len(stream); split++ {
		p := NewParser()
		var got []Event
		got = append(got, p.Feed([]byte(stream[:split]))...)
		got = append(got, p.Feed([]byte(stream[split:]))...)

		require.Len(t, got, 3, "split at %d", split)
		assert.Equal(t, `{"a":1}`, got[0].Data)
		assert.Equal(t, Event{Event: "token", Data: "line one\nline two", ID: "7"}, got[1])
		assert.Equal(t, "[DONE]", got[2].Data)
	}
}

func TestParserByteAtATime(t *testing.T) {
	p := NewParser()
	var got []Event
	for _, b := range []byte("event: meta\ndata:{\"x\":true}\n\n") {
		got = append(got, p.Feed([]byte{b})...)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "meta", got[0].Event)
	assert.Equal(t, `{"x":true}`, got[0].Data)
}

func TestDecoderDropsIncompleteTrailingEvent(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: first\n\ndata: partial"))

	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, "first", ev.Data)

	_, err = d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestDecoderPropagatesReadErrors(t *testing.T) {
	boom := errors.New("connection reset")
	d := NewDecoder(failingReader{err: boom})
	_, err := d.Next()
	assert.ErrorIs(t, err, boom)
}

func TestEncodeRoundTripsThroughParser(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Event{Event: "token", Data: "a\nb"}))
	assert.Equal(t, "event: token\ndata: a\ndata: b\n\n", buf.String())

	events := NewParser().Feed(buf.Bytes())
	require.Len(t, events, 1)
	assert.Equal(t, "a\nb", events[0].Data)
}

func TestRelayWritesMetaFirstAndForwardsInOrder(t *testing.T) {
	src := make(chan Event, 3)
	src <- Event{Event: EventToken, Data: `{"content":"Hel"}`}
	src <- Event{Event: EventToken, Data: `{"content":"lo"}`}
	src <- Event{Event: EventDone, Data: `{"content":"Hello"}`}
	close(src)

	var buf bytes.Buffer
	flushes := 0
	cancelled := false
	meta := map[string]string{"conversationId": "c-1", "agentSlug": "sales-coach"}

	err := Relay(context.Background(), &buf, func() { flushes++ }, meta, src, func() { cancelled = true })
	require.NoError(t, err)
	assert.False(t, cancelled)
	assert.Equal(t, 4, flushes)

	events := NewParser().Feed(buf.Bytes())
	require.Len(t, events, 4)
	assert.Equal(t, EventMeta, events[0].Event)
	var gotMeta map[string]string
	require.NoError(t, json.Unmarshal([]byte(events[0].Data), &gotMeta))
	assert.Equal(t, "c-1", gotMeta["conversationId"])
	assert.Equal(t, EventToken, events[1].Event)
	assert.Equal(t, EventToken, events[2].Event)
	assert.Equal(t, EventDone, events[3].Event)
}

func TestRelayCancelsUpstreamOnClientDisconnect(t *testing.T) {
	ctx, disconnect := context.WithCancel(context.Background())
	src := make(chan Event)
	cancelled := make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- Relay(ctx, io.Discard, nil, struct{}{}, src, func() { close(cancelled) })
	}()

	disconnect()
	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
	<-cancelled
}
