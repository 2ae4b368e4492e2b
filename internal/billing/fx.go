package billing

import (
	"go.uber.org/fx"

	"github.com/astraops/paygate/internal/billing/repository"
	"github.com/astraops/paygate/internal/billing/service"
)

// Module wires billing storage and the reconciliation service.
var Module = fx.Module("billing",
	fx.Provide(
		repository.New,
		service.New,
	),
)
