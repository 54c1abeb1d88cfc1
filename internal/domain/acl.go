package domain

import "time"

// ACLType описывает вид ограничения или расширения лимита.
type ACLType string

const (
	// ACLUsage — запрет (для бана) или «почти безлимит» (для премиума).
	ACLUsage ACLType = "usage"
	// ACLLimit — явное значение дневного лимита.
	ACLLimit ACLType = "limit"
)

// PremiumUsageLimit — дневной лимит премиума вида usage.
const PremiumUsageLimit = 1000

// ACL переопределяет дневной лимит пользователя.
type ACL struct {
	UserID int64

	Premium       bool
	PremiumType   ACLType
	PremiumLimit  int
	PremiumReason string
	PremiumUntil  time.Time

	Banned    bool
	BanType   ACLType
	BanLimit  int
	BanReason string
	BanUntil  time.Time
}

// DailyLimit возвращает лимит загрузок в сутки. ok=false означает, что ACL не действует
// и нужно использовать бесплатный лимит.
func (a ACL) DailyLimit(now time.Time) (limit int, ok bool) {
	if a.Banned && now.Before(a.BanUntil) {
		if a.BanType == ACLUsage {
			return 0, true
		}
		return a.BanLimit, true
	}
	if a.Premium && now.Before(a.PremiumUntil) {
		if a.PremiumType == ACLUsage {
			return PremiumUsageLimit, true
		}
		return a.PremiumLimit, true
	}
	return 0, false
}

// QuotaState описывает использование дневного лимита.
type QuotaState struct {
	Limit int
	Used  int
}

// Allowed сообщает, можно ли поставить ещё одну загрузку.
func (q QuotaState) Allowed() bool {
	return q.Used < q.Limit
}

// Remaining возвращает остаток на сегодня.
func (q QuotaState) Remaining() int {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}

// ResolveQuota считает квоту по ACL (может быть nil) и бесплатному лимиту.
func ResolveQuota(acl *ACL, freeLimit, used int, now time.Time) QuotaState {
	limit := freeLimit
	if acl != nil {
		if l, ok := acl.DailyLimit(now); ok {
			limit = l
		}
	}
	return QuotaState{Limit: limit, Used: used}
}
