package analytics

import (
	"database/sql"
	"log/slog"
	"net/http"

	"atmos-server/internal/modules/analytics/controller"
	"atmos-server/internal/modules/analytics/repository"
	"atmos-server/internal/modules/analytics/service"
	"atmos-server/internal/mqtt"
)

// RegisterFeature wires the analytics module: repository, service, HTTP
// routes and the MQTT observation handler.
func RegisterFeature(mux *http.ServeMux, db *sql.DB, subscriber mqtt.ObservationSubscriber) *service.Service {
	repo := repository.NewRepository(db)
	svc := service.NewService(repo, slog.Default())
	controller.NewAnalyticsController(svc).RegisterRoutes(mux)
	if subscriber != nil {
		subscriber.SetMessageHandler(svc.HandleObservation)
	}
	return svc
}
