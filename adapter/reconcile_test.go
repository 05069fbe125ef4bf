package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dratasich/ndn-orion-adapter/orion"
)

var sample = []orion.Attribute{{Name: "value", Value: orion.DoubleValue(23.5)}}

func TestReconcileExistingEntity(t *testing.T) {
	// arrange
	broker := newFakeBroker()
	broker.entities["SensorValue:12347:value"] = true
	r := NewReconciler(broker, "SensorValue")

	// act
	outcome, err := r.Reconcile(context.Background(), "SensorValue:12347:value", sample)

	// assert
	require.NoError(t, err)
	assert.Equal(t, Updated, outcome)
	assert.Equal(t, []string{"update"}, broker.ops())
}

func TestReconcileNewEntity(t *testing.T) {
	// arrange
	broker := newFakeBroker()
	r := NewReconciler(broker, "SensorValue")

	// act
	outcome, err := r.Reconcile(context.Background(), "SensorValue:12347:value", sample)

	// assert
	require.NoError(t, err)
	assert.Equal(t, Created, outcome)
	assert.Equal(t, []string{"update", "create"}, broker.ops())
	create := broker.calls[1]
	assert.Equal(t, "SensorValue:12347:value", create.id)
	assert.Equal(t, "SensorValue", create.entityType)
	assert.Equal(t, sample, create.attrs)

	// a second sample for the same sensor only updates
	outcome, err = r.Reconcile(context.Background(), "SensorValue:12347:value", sample)
	require.NoError(t, err)
	assert.Equal(t, Updated, outcome)
	assert.Equal(t, []string{"update", "create", "update"}, broker.ops())
}

func TestReconcileBrokerError(t *testing.T) {
	// arrange
	broker := newFakeBroker()
	broker.updateErr = &orion.BrokerError{Op: "UpdateEntity", StatusCode: http.StatusInternalServerError, Body: "boom"}
	r := NewReconciler(broker, "SensorValue")

	// act
	outcome, err := r.Reconcile(context.Background(), "SensorValue:12347:value", sample)

	// assert
	assert.Equal(t, Failed, outcome)
	var brokerErr *orion.BrokerError
	require.True(t, errors.As(err, &brokerErr))
	assert.Equal(t, http.StatusInternalServerError, brokerErr.StatusCode)
	assert.Equal(t, []string{"update"}, broker.ops(), "no create without a preceding not found")
}

func TestReconcileCreateFails(t *testing.T) {
	broker := newFakeBroker()
	broker.createErr = errors.New("connection refused")
	r := NewReconciler(broker, "SensorValue")

	outcome, err := r.Reconcile(context.Background(), "SensorValue:1:value", sample)

	assert.Equal(t, Failed, outcome)
	assert.ErrorIs(t, err, broker.createErr)
	assert.Equal(t, "failed", outcome.String())
}

func TestReconcileAgainstOrion(t *testing.T) {
	// arrange: the broker does not know the entity yet
	type request struct {
		method, path string
		body         map[string]any
	}
	var requests []request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := request{method: r.Method, path: r.URL.Path}
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &req.body))
		requests = append(requests, req)
		switch r.Method {
		case http.MethodPut:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"NotFound","description":"The requested entity has not been found. Check type and id"}`)
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
		}
	}))
	defer srv.Close()
	r := NewReconciler(orion.NewClient(srv.URL, time.Second, zerolog.Nop()), "SensorValue")

	// act
	outcome, err := r.Reconcile(context.Background(), "SensorValue:12347:value", sample)

	// assert
	require.NoError(t, err)
	assert.Equal(t, Created, outcome)
	require.Len(t, requests, 2)
	assert.Equal(t, http.MethodPut, requests[0].method)
	assert.Equal(t, "/v2/entities/SensorValue:12347:value/attrs", requests[0].path)
	assert.Equal(t, http.MethodPost, requests[1].method)
	assert.Equal(t, "/v2/entities", requests[1].path)
	assert.Equal(t, map[string]any{
		"id":    "SensorValue:12347:value",
		"type":  "SensorValue",
		"value": map[string]any{"value": 23.5, "type": "Double"},
	}, requests[1].body)
}
