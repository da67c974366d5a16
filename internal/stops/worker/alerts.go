package worker

import (
	"context"
	"errors"

	apperrors "checkpost/pkg/errors"
	"checkpost/pkg/kafka"
	"checkpost/pkg/logger"
	"checkpost/pkg/metrics"
	"checkpost/pkg/model"
)

const (
	AlertRepeatedVehicle = "repeated_vehicle"
	AlertSearchArrest    = "search_arrest"
)

// AlertSource is satisfied by service.StopService.
type AlertSource interface {
	Alerts(ctx context.Context, filter model.StopFilter) (*model.Alerts, error)
}

// AlertsWorker re-runs the alert queries whenever a batch with stored rows
// lands, logging every flagged vehicle.
type AlertsWorker struct {
	source AlertSource
	log    *logger.Logger
}

func NewAlertsWorker(source AlertSource, log *logger.Logger) *AlertsWorker {
	return &AlertsWorker{source: source, log: log}
}

// Handle is a kafka.MessageHandler for the stops.ingested topic.
func (w *AlertsWorker) Handle(ctx context.Context, msg kafka.Message) error {
	if t := msg.GetEventType(); t != "" && t != kafka.EventBatchIngested {
		w.log.Debug("Skipping unrelated event", "event_type", t)
		return nil
	}

	var evt model.BatchIngestedEvent
	if err := msg.DecodeValue(&evt); err != nil {
		return err
	}
	if evt.Inserted == 0 {
		return nil
	}

	alerts, err := w.source.Alerts(ctx, model.StopFilter{})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.StatusCode() < 500 {
			return kafka.NewPermanentError("alerts query rejected", err)
		}
		return kafka.NewTransientError("alerts query failed", err)
	}

	log := w.log.With("batch_id", evt.BatchID, "source", evt.Source)
	for _, v := range alerts.RepeatedVehicles {
		log.Warn("Repeated vehicle stopped",
			"vehicle_number", v.VehicleNumber,
			"stops", v.Stops,
			"since", alerts.Since,
		)
	}
	metrics.ObserveAlerts(AlertRepeatedVehicle, len(alerts.RepeatedVehicles))
	metrics.ObserveAlerts(AlertSearchArrest, len(alerts.SearchArrestEvents))

	log.Info("Alerts evaluated",
		"rows", evt.Rows,
		"inserted", evt.Inserted,
		"repeated_vehicles", len(alerts.RepeatedVehicles),
		"search_arrest_events", len(alerts.SearchArrestEvents),
	)
	return nil
}
