package order

import (
	"github.com/smallbiznis/payqr/internal/order/domain"
	"github.com/smallbiznis/payqr/internal/order/repository"
	orderservice "github.com/smallbiznis/payqr/internal/order/service"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("order",
	fx.Provide(repository.Provide),
	fx.Provide(orderservice.NewService),
	fx.Invoke(migrate),
)

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Order{})
}
