package worker

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "checkpost/pkg/errors"
	"checkpost/pkg/kafka"
	"checkpost/pkg/logger"
	"checkpost/pkg/model"
)

type mockAlertSource struct {
	alerts *model.Alerts
	err    error
	calls  int
}

func (m *mockAlertSource) Alerts(context.Context, model.StopFilter) (*model.Alerts, error) {
	m.calls++
	return m.alerts, m.err
}

func batchMessage(t *testing.T, evt model.BatchIngestedEvent) kafka.Message {
	t.Helper()
	msg, err := kafka.NewMessage().
		WithKey(evt.BatchID).
		WithValue(evt).
		WithEventType(kafka.EventBatchIngested).
		Build()
	if err != nil {
		t.Fatalf("build message: %v", err)
	}
	return msg
}

func TestAlertsWorker_Handle(t *testing.T) {
	var buf bytes.Buffer
	source := &mockAlertSource{alerts: &model.Alerts{
		MinStops:         2,
		RepeatedVehicles: []model.RepeatedVehicle{{VehicleNumber: "TN01AB1234", Stops: 3}},
	}}
	w := NewAlertsWorker(source, logger.New(logger.Config{Output: &buf}))

	err := w.Handle(context.Background(), batchMessage(t, model.BatchIngestedEvent{BatchID: "b1", Rows: 5, Inserted: 5}))
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if source.calls != 1 {
		t.Errorf("Alerts called %d times, want 1", source.calls)
	}
	if !strings.Contains(buf.String(), "TN01AB1234") {
		t.Errorf("repeated vehicle not logged: %s", buf.String())
	}
}

func TestAlertsWorker_SkipsEmptyAndForeignEvents(t *testing.T) {
	source := &mockAlertSource{alerts: &model.Alerts{}}
	w := NewAlertsWorker(source, logger.Discard())

	if err := w.Handle(context.Background(), batchMessage(t, model.BatchIngestedEvent{BatchID: "b1", Rows: 2})); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	foreign := kafka.Message{Value: []byte(`{}`), Headers: map[string]string{kafka.HeaderEventType: kafka.EventReviewNeeded}}
	if err := w.Handle(context.Background(), foreign); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	if source.calls != 0 {
		t.Errorf("Alerts called %d times, want 0", source.calls)
	}
}

func TestAlertsWorker_ErrorClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  kafka.Message
		want kafka.ErrorType
	}{
		{
			name: "undecodable payload",
			msg:  kafka.Message{Value: []byte("not json"), Headers: map[string]string{}},
			want: kafka.ErrorTypePermanent,
		},
		{
			name: "storage failure",
			err:  apperrors.Internal("Failed to find repeated vehicles", errors.New("server selection error")),
			want: kafka.ErrorTypeTransient,
		},
		{
			name: "rejected filter",
			err:  apperrors.Validation("bad filter", nil),
			want: kafka.ErrorTypePermanent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			if msg.Value == nil {
				msg = batchMessage(t, model.BatchIngestedEvent{BatchID: "b1", Inserted: 1})
			}
			w := NewAlertsWorker(&mockAlertSource{err: tt.err}, logger.Discard())

			err := w.Handle(context.Background(), msg)
			if err == nil {
				t.Fatal("Handle() error = nil, want error")
			}
			if got := kafka.ClassifyError(err); got != tt.want {
				t.Errorf("ClassifyError() = %v, want %v", got, tt.want)
			}
		})
	}
}
