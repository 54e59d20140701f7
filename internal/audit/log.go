package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogRecorder writes audit records to the process log. Used when bookings
// are not kept in Postgres.
type LogRecorder struct {
	Log logrus.FieldLogger
}

func (r LogRecorder) Record(_ context.Context, action, actor string, bookingID *string, metadata any) error {
	fields := logrus.Fields{"audit_action": action, "actor": actor}
	if bookingID != nil {
		fields["booking_id"] = *bookingID
	}
	if metadata != nil {
		fields["metadata"] = metadata
	}
	r.Log.WithFields(fields).Warn("audit")
	return nil
}
