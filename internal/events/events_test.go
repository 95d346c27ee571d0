package events

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChannel_DeliversInOrderAndDropsWhenFull(t *testing.T) {
	req := require.New(t)
	sink := NewChannel(slog.New(slog.NewTextHandler(io.Discard, nil)), 2)

	sink.Emit(Join, "alice")
	sink.Emit(NewMessage, "hi")
	sink.Emit(ClientExit, "dropped")

	req.Equal(Event{Name: Join, Payload: "alice"}, <-sink.Events())
	req.Equal(Event{Name: NewMessage, Payload: "hi"}, <-sink.Events())
	select {
	case evt := <-sink.Events():
		req.Failf("unexpected event", "%v", evt)
	default:
	}
}

func TestSinkFunc(t *testing.T) {
	var got []string
	sink := SinkFunc(func(name string, _ any) { got = append(got, name) })
	sink.Emit(Shutdown, nil)
	Discard.Emit(Error, nil)
	require.Equal(t, []string{Shutdown}, got)
}
