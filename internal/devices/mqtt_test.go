package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/vlightd/internal/platform"
)

type doneToken struct {
	err  error
	done chan struct{}
}

func newDoneToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }

type published struct {
	topic   string
	payload string
}

type fakeMQTT struct {
	mqtt.Client
	messages []published
	err      error
}

func (c *fakeMQTT) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	c.messages = append(c.messages, published{topic: topic, payload: string(payload.([]byte))})
	return newDoneToken(c.err)
}

func TestMQTTDriver_Apply(t *testing.T) {
	client := &fakeMQTT{}
	d := NewMQTTDriver(client, "zigbee2mqtt/desk", 1)
	ctx := context.Background()

	require.NoError(t, d.Apply(ctx, Command{On: true, Brightness: platform.IntPtr(200), Kelvin: platform.IntPtr(4000)}))
	require.NoError(t, d.Apply(ctx, Command{On: true, RGB: &platform.RGB{10, 20, 30}}))
	require.NoError(t, d.Apply(ctx, Command{On: false}))

	require.Len(t, client.messages, 3)
	for _, m := range client.messages {
		assert.Equal(t, "zigbee2mqtt/desk/set", m.topic)
	}
	assert.JSONEq(t, `{"state":"ON","brightness":200,"color_temp":250}`, client.messages[0].payload)
	assert.JSONEq(t, `{"state":"ON","color":{"r":10,"g":20,"b":30}}`, client.messages[1].payload)
	assert.JSONEq(t, `{"state":"OFF"}`, client.messages[2].payload)
}

func TestMQTTDriver_PublishError(t *testing.T) {
	errNotConnected := errors.New("not connected")
	d := NewMQTTDriver(&fakeMQTT{err: errNotConnected}, "zigbee2mqtt/desk", 0)

	assert.ErrorIs(t, d.Apply(context.Background(), Command{On: true}), errNotConnected)
}
