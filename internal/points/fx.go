package points

import (
	"github.com/smallbiznis/edupoints/internal/points/cache"
	"github.com/smallbiznis/edupoints/internal/points/fraud"
	"github.com/smallbiznis/edupoints/internal/points/journal"
	"github.com/smallbiznis/edupoints/internal/points/ledger"
	"github.com/smallbiznis/edupoints/internal/points/ratewindow"
	"github.com/smallbiznis/edupoints/internal/points/service"
	"go.uber.org/fx"
)

var Module = fx.Module("points.service",
	fx.Provide(journal.New),
	fx.Provide(ledger.New),
	fx.Provide(ratewindow.New),
	fx.Provide(fraud.New),
	fx.Provide(fraud.NewLogRepository),
	fx.Provide(cache.New),
	fx.Provide(service.New),
)
