package pricing

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ecom/internal/domain"
)

// CartItem — позиция корзины, присланная клиентом. Цена клиентом не
// присылается: subtotal всегда считается по текущему каталогу.
type CartItem struct {
	ProductID string
	Qty       int32
}

// Quote — результат оценки корзины: позиции с зафиксированными ценами
// и разложение итоговой суммы.
type Quote struct {
	Items      []domain.OrderItem
	Pricing    domain.Pricing
	CouponCode string
}

// Evaluator считает стоимость корзины и проверяет применимость купона.
type Evaluator struct {
	products domain.ProductRepository
	coupons  domain.CouponRepository
	usage    domain.CouponUsageRepository
	policy   Policy
	logger   *log.Entry

	// now подменяется в тестах для проверки истечения купонов.
	now func() time.Time
}

// NewEvaluator создаёт оценщик с заданной денежной политикой.
func NewEvaluator(
	products domain.ProductRepository,
	coupons domain.CouponRepository,
	usage domain.CouponUsageRepository,
	policy Policy,
	logger *log.Entry,
) *Evaluator {
	if logger == nil {
		logger = log.WithField("component", "pricing")
	}
	return &Evaluator{
		products: products,
		coupons:  coupons,
		usage:    usage,
		policy:   policy,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Price оценивает корзину. Каждая причина отказа — отдельная доменная
// ошибка, чтобы клиент мог отреагировать (убрать товар, снять купон).
func (e *Evaluator) Price(items []CartItem, method domain.PaymentMethod, couponCode, userID string) (Quote, error) {
	if len(items) == 0 {
		return Quote{}, domain.ErrItemsRequired
	}

	priced := make([]domain.OrderItem, 0, len(items))
	var subtotal int64
	for _, item := range items {
		if item.Qty <= 0 {
			return Quote{}, domain.ErrItemQtyInvalid
		}

		product, err := e.products.Get(item.ProductID)
		if err != nil {
			return Quote{}, fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		if !product.IsActive {
			return Quote{}, fmt.Errorf("product %s: %w", product.ID, domain.ErrProductUnavailable)
		}
		if product.Stock < item.Qty {
			return Quote{}, &domain.InsufficientStockError{
				ProductID: product.ID,
				Available: product.Stock,
				Requested: item.Qty,
			}
		}

		lineTotal := int64(item.Qty) * product.PriceMinor
		priced = append(priced, domain.OrderItem{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceMinor: product.PriceMinor,
			Qty:            item.Qty,
			LineTotalMinor: lineTotal,
		})
		subtotal += lineTotal
	}

	var discount int64
	appliedCode := ""
	if couponCode != "" {
		code := domain.NormalizeCouponCode(couponCode)
		var err error
		discount, err = e.evaluateCoupon(code, userID, subtotal)
		if err != nil {
			return Quote{}, err
		}
		appliedCode = code
	}

	shipping := e.shippingCost(subtotal)
	fee := e.processingFee(method, subtotal)
	tax := roundBP(subtotal-discount, e.policy.TaxRateBP)

	quote := Quote{
		Items:      priced,
		CouponCode: appliedCode,
		Pricing: domain.Pricing{
			SubtotalMinor:      subtotal,
			DiscountMinor:      discount,
			ShippingMinor:      shipping,
			TaxMinor:           tax,
			ProcessingFeeMinor: fee,
			TotalMinor:         subtotal - discount + shipping + tax + fee,
		},
	}
	return quote, nil
}

// evaluateCoupon проверяет применимость купона в фиксированном порядке:
// существует и активен → не истёк → min order → глобальный лимит → лимит пользователя.
func (e *Evaluator) evaluateCoupon(code, userID string, subtotal int64) (int64, error) {
	coupon, err := e.coupons.GetByCode(code)
	if err != nil {
		return 0, err
	}
	if !coupon.IsActive {
		return 0, domain.ErrCouponInactive
	}
	if coupon.Expired(e.now()) {
		return 0, domain.ErrCouponExpired
	}
	if subtotal < coupon.MinOrderValueMinor {
		return 0, domain.ErrCouponMinOrder
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return 0, domain.ErrCouponLimitExceeded
	}
	if coupon.PerUserLimit > 0 {
		record, err := e.usage.Get(code, userID)
		if err != nil {
			return 0, fmt.Errorf("load coupon usage %s/%s: %w", code, userID, err)
		}
		if record.UsageCount >= coupon.PerUserLimit {
			return 0, domain.ErrCouponUserLimitExceeded
		}
	}

	var discount int64
	switch coupon.Type {
	case domain.DiscountPercentage:
		discount = roundPercent(subtotal, coupon.DiscountValue)
		if coupon.MaxDiscountMinor > 0 && discount > coupon.MaxDiscountMinor {
			discount = coupon.MaxDiscountMinor
		}
	case domain.DiscountFixed:
		discount = coupon.DiscountValue
	default:
		e.logger.WithFields(log.Fields{
			"coupon": code,
			"type":   coupon.Type,
		}).Warn("unknown coupon type, treating as no discount")
	}

	// Скидка не бывает отрицательной и не превышает subtotal.
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}
	return discount, nil
}

func (e *Evaluator) shippingCost(subtotal int64) int64 {
	if e.policy.FreeShippingThresholdMinor > 0 && subtotal >= e.policy.FreeShippingThresholdMinor {
		return 0
	}
	return e.policy.FlatShippingMinor
}

func (e *Evaluator) processingFee(method domain.PaymentMethod, subtotal int64) int64 {
	switch method {
	case domain.PaymentMethodCOD:
		return e.policy.CODSurchargeMinor
	case domain.PaymentMethodCard:
		return roundBP(subtotal, e.policy.CardFeeBP)
	default:
		return 0
	}
}
