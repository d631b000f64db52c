package payment

import (
	"context"
	"sync"
	"testing"
	"time"

	"pnptv_backend/internal/cache"
	"pnptv_backend/internal/config"
	"pnptv_backend/internal/gateway"
	"pnptv_backend/internal/models"
	"pnptv_backend/internal/repositories"
	"pnptv_backend/internal/security"
	"pnptv_backend/internal/services/subscription"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
)

// --- in-memory репозиторий платежей ---

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*models.Payment
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: make(map[string]*models.Payment)}
}

func (r *fakePaymentRepo) put(p *models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Metadata == nil {
		p.Metadata = datatypes.JSONMap{}
	}
	cp := *p
	r.payments[p.ID] = &cp
}

func (r *fakePaymentRepo) get(id string) *models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (r *fakePaymentRepo) Create(_ context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now()
	r.put(p)
	return nil
}

func (r *fakePaymentRepo) FindByID(_ context.Context, id string) (*models.Payment, error) {
	if p := r.get(id); p != nil {
		return p, nil
	}
	return nil, repositories.ErrPaymentNotFound
}

func (r *fakePaymentRepo) FindByTransactionID(_ context.Context, provider models.PaymentProvider, txnID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.Provider == provider && p.TransactionID == txnID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrPaymentNotFound
}

func (r *fakePaymentRepo) FindByReference(_ context.Context, reference string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.Reference == reference {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repositories.ErrPaymentNotFound
}

func (r *fakePaymentRepo) FindByUser(_ context.Context, userID string) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) SetCheckoutInfo(_ context.Context, id, reference, paymentURL string, metadata map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return repositories.ErrPaymentNotFound
	}
	p.Reference = reference
	p.PaymentURL = paymentURL
	if p.Metadata == nil {
		p.Metadata = datatypes.JSONMap{}
	}
	for k, v := range metadata {
		p.Metadata[k] = v
	}
	return nil
}

func (r *fakePaymentRepo) CompleteIfPending(_ context.Context, id, txnID, gatewayRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status.IsTerminal() {
		return false, nil
	}
	now := time.Now()
	p.Status = models.PaymentStatusCompleted
	p.TransactionID = txnID
	if p.Metadata == nil {
		p.Metadata = datatypes.JSONMap{}
	}
	p.Metadata["ref_payco"] = gatewayRef
	p.CompletedAt = &now
	return true, nil
}

func (r *fakePaymentRepo) MarkRejected(_ context.Context, id, reason string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status.IsTerminal() {
		return false, nil
	}
	now := time.Now()
	p.Status = models.PaymentStatusRejected
	p.FailedAt = &now
	if p.Metadata == nil {
		p.Metadata = datatypes.JSONMap{}
	}
	p.Metadata["rejection_reason"] = reason
	return true, nil
}

func (r *fakePaymentRepo) MarkAwaiting3DS(_ context.Context, id, txnID, gatewayRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return false, nil
	}
	if p.Status != models.PaymentStatusPending && p.Status != models.PaymentStatusProcessing {
		return false, nil
	}
	p.Status = models.PaymentStatusAwaiting3DS
	p.TransactionID = txnID
	if p.Metadata == nil {
		p.Metadata = datatypes.JSONMap{}
	}
	p.Metadata["ref_payco"] = gatewayRef
	return true, nil
}

func (r *fakePaymentRepo) MarkProcessing(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != models.PaymentStatusPending {
		return false, nil
	}
	p.Status = models.PaymentStatusProcessing
	return true, nil
}

func (r *fakePaymentRepo) MarkAbandonedIfStale(_ context.Context, id string, olderThan time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status.IsTerminal() || !p.CreatedAt.Before(olderThan) {
		return false, nil
	}
	p.Status = models.PaymentStatusAbandoned
	return true, nil
}

func (r *fakePaymentRepo) MergeMetadata(_ context.Context, id string, patch map[string]interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return repositories.ErrPaymentNotFound
	}
	if p.Metadata == nil {
		p.Metadata = datatypes.JSONMap{}
	}
	for k, v := range patch {
		p.Metadata[k] = v
	}
	return nil
}

func (r *fakePaymentRepo) FindStale(_ context.Context, olderThan time.Time, statuses []models.PaymentStatus) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if !p.CreatedAt.Before(olderThan) {
			continue
		}
		for _, st := range statuses {
			if p.Status == st {
				out = append(out, *p)
				break
			}
		}
	}
	return out, nil
}

var _ repositories.PaymentRepository = (*fakePaymentRepo)(nil)

// --- in-memory пользователи и планы ---

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

func (r *fakeUserRepo) put(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.users[u.ID] = &cp
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) UpdateSubscription(_ context.Context, userID string, status models.SubscriptionStatus, planID string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repositories.ErrUserNotFound
	}
	u.SubscriptionStatus = status
	u.PlanID = planID
	u.SubscriptionExpiry = &expiry
	return nil
}

var _ repositories.UserRepository = (*fakeUserRepo)(nil)

type fakePlanRepo struct {
	plans map[string]*models.SubscriptionPlan
}

func newFakePlanRepo(plans ...*models.SubscriptionPlan) *fakePlanRepo {
	r := &fakePlanRepo{plans: make(map[string]*models.SubscriptionPlan)}
	for _, p := range plans {
		r.plans[p.ID] = p
	}
	return r
}

func (r *fakePlanRepo) FindByID(_ context.Context, id string) (*models.SubscriptionPlan, error) {
	if p, ok := r.plans[id]; ok {
		return p, nil
	}
	return nil, repositories.ErrPlanNotFound
}

func (r *fakePlanRepo) FindBySKU(_ context.Context, sku string) (*models.SubscriptionPlan, error) {
	for _, p := range r.plans {
		if p.SKU == sku {
			return p, nil
		}
	}
	return nil, repositories.ErrPlanNotFound
}

func (r *fakePlanRepo) FindActive(_ context.Context) ([]models.SubscriptionPlan, error) {
	var out []models.SubscriptionPlan
	for _, p := range r.plans {
		if p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

var _ repositories.PlanRepository = (*fakePlanRepo)(nil)

// --- управляемый шлюз ---

type fakeGateway struct {
	mu           sync.Mutex
	chargeRes    gateway.ChargeResult
	chargeErr    error
	statusRes    gateway.ChargeResult
	statusErr    error
	customerID   string
	chargeCalls  int
	custCalls    int
	lastRequest  gateway.ChargeRequest
}

func (g *fakeGateway) CreateToken(_ context.Context, _ map[string]string) (string, error) {
	return "tok_test", nil
}

func (g *fakeGateway) CreateCustomer(_ context.Context, _, _, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.custCalls++
	if g.customerID == "" {
		g.customerID = "cust_" + uuid.NewString()[:8]
	}
	return g.customerID, nil
}

func (g *fakeGateway) CreateCharge(_ context.Context, req gateway.ChargeRequest) (gateway.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chargeCalls++
	g.lastRequest = req
	if g.chargeErr != nil {
		return gateway.ChargeResult{}, g.chargeErr
	}
	return g.chargeRes, nil
}

func (g *fakeGateway) GetTransactionStatus(_ context.Context, _ string) (gateway.ChargeResult, error) {
	if g.statusErr != nil {
		return gateway.ChargeResult{}, g.statusErr
	}
	return g.statusRes, nil
}

var _ gateway.Gateway = (*fakeGateway)(nil)

// --- сборка тестового окружения ---

type testEnv struct {
	cfg        *config.Config
	redis      *miniredis.Miniredis
	cache      *cache.Cache
	guard      *security.Guard
	payments   *fakePaymentRepo
	users      *fakeUserRepo
	plans      *fakePlanRepo
	gw         *fakeGateway
	activation *subscription.ActivationService
	completer  *Completer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewFromClient(client)

	cfg := &config.Config{}
	cfg.Server.Env = "test"
	cfg.Payments.COPRate = 4000
	cfg.Payments.RateLimitPerHour = 10
	cfg.Payments.LockTTLSeconds = 300
	cfg.Payments.CheckoutWindowSeconds = 3600
	cfg.Payments.StuckAfterMinutes = 10
	cfg.Payments.AbandonedAfterHours = 24
	cfg.Payments.ConfirmTokenSecret = "test-secret"
	cfg.Payments.ConfirmTokenTTLMinute = 60
	cfg.Epayco.PublicKey = "pub_test"
	cfg.Epayco.PrivateKey = "priv_test"
	cfg.Daimo.WebhookSecret = "daimo_secret"

	guard := security.NewGuard(c, cfg.Payments.RateLimitPerHour, cfg.LockTTL(), cfg.CheckoutWindow())

	payments := newFakePaymentRepo()
	users := newFakeUserRepo()
	plans := newFakePlanRepo()
	gw := &fakeGateway{}

	activation := subscription.NewActivationService(users, plans, nil)
	completer := NewCompleter(payments, activation, guard)

	return &testEnv{
		cfg:        cfg,
		redis:      mr,
		cache:      c,
		guard:      guard,
		payments:   payments,
		users:      users,
		plans:      plans,
		gw:         gw,
		activation: activation,
		completer:  completer,
	}
}

// seedPlanAndUser заводит тестовый план и пользователя.
func (e *testEnv) seedPlanAndUser(price float64, durationDays int) (*models.SubscriptionPlan, *models.User) {
	plan := &models.SubscriptionPlan{
		BaseModel:    models.BaseModel{ID: uuid.NewString()},
		SKU:          "golden-30",
		Name:         "golden",
		DisplayName:  "Golden 30",
		Price:        price,
		Currency:     "USD",
		DurationDays: durationDays,
		IsActive:     true,
	}
	e.plans.plans[plan.ID] = plan

	user := &models.User{
		BaseModel: models.BaseModel{ID: uuid.NewString()},
		Email:     "user@example.com",
		FirstName: "Ana",
		Language:  "es",
	}
	e.users.put(user)
	return plan, user
}

// seedPayment заводит платеж в заданном статусе.
func (e *testEnv) seedPayment(userID, planID string, price float64, status models.PaymentStatus) *models.Payment {
	p := &models.Payment{
		BaseModel: models.BaseModel{ID: uuid.NewString(), CreatedAt: time.Now()},
		UserID:    userID,
		PlanID:    planID,
		Provider:  models.PaymentProviderEpayco,
		Amount:    price,
		Currency:  "USD",
		Status:    status,
		Metadata:  datatypes.JSONMap{"plan_name": "Golden 30"},
	}
	p.Reference = models.MakeReference(p.ID)
	e.payments.put(p)
	return p
}
