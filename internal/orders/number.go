package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const orderNumberPrefix = "ER"

// NewOrderNumber renders ER-YYYYMMDD-XXXXXXXX, the external reference sent to the gateway.
func NewOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return orderNumberPrefix + "-" + now.UTC().Format("20060102") + "-" + suffix
}
