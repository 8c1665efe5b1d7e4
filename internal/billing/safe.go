package billing

import (
	"fmt"

	"go.uber.org/zap"
)

// SafeCompute wraps Compute with the soft-fail policy: any error or panic
// produces zeroed totals and a log entry instead of propagating. A broken
// contract configuration must not block access to the reading itself.
func SafeCompute(log *zap.Logger, in Input) (out Totals) {
	defer func() {
		if r := recover(); r != nil {
			out = Totals{}
			log.Error("billing computation panicked, zeroing totals",
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()

	totals, err := Compute(in)
	if err != nil {
		deviceID := ""
		if in.Device != nil {
			deviceID = in.Device.ID.String()
		}
		log.Error("billing computation failed, zeroing totals",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return Totals{}
	}
	return totals
}
