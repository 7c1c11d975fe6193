package passbook

import (
	"github.com/smallbiznis/payqr/internal/passbook/httpsource"
	"go.uber.org/fx"
)

var Module = fx.Module("passbook",
	fx.Provide(httpsource.New),
)
