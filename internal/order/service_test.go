package order_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/apperr"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/db"
	"github.com/vasiliy-maslov/ecommerce-microservices/admin-service/internal/order"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) List(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id int64, expected, next order.Status) (*order.Order, error) {
	args := m.Called(ctx, id, expected, next)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

// memoryRepository keeps orders in memory and applies status updates with
// the same compare-and-swap contract as the postgres repository.
type memoryRepository struct {
	mu     sync.Mutex
	orders map[int64]order.Order
}

func newMemoryRepository(orders ...order.Order) *memoryRepository {
	r := &memoryRepository{orders: make(map[int64]order.Order)}
	for _, o := range orders {
		r.orders[o.ID] = o
	}
	return r
}

func (r *memoryRepository) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o.ID = int64(len(r.orders) + 1)
	r.orders[o.ID] = *o
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id int64) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "order", ID: id}
	}
	return &o, nil
}

func (r *memoryRepository) List(context.Context, order.ListFilter) ([]order.Order, error) {
	return nil, errors.New("not implemented")
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id int64, expected, next order.Status) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, &apperr.NotFoundError{Resource: "order", ID: id}
	}
	if o.Status != expected {
		return nil, &order.StatusConflictError{OrderID: id, Current: o.Status}
	}
	o.Status = next
	r.orders[id] = o
	return &o, nil
}

func (r *memoryRepository) status(id int64) order.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id].Status
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleOrder(id int64, status order.Status, subtotal, tax, discount string) order.Order {
	o := order.Order{
		ID:       id,
		Customer: order.Customer{FirstName: "Jane", LastName: "Doe", Email: "jane@example.com"},
		Subtotal: dec(subtotal),
		Tax:      dec(tax),
		Discount: dec(discount),
		Status:   status,
		Items: []order.OrderItem{
			{ID: id * 10, OrderID: id, ProductName: "Milk", Quantity: 1, PriceAtPurchase: dec(subtotal)},
		},
		PlacedAt: time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC),
	}
	o.Total = o.Subtotal.Add(o.Tax).Sub(o.Discount)
	return o
}

func validNewOrder() order.NewOrder {
	return order.NewOrder{
		Customer: order.Customer{
			FirstName:  " Jane ",
			LastName:   "Doe",
			Email:      "jane@example.com",
			Phone:      "416-555-0100",
			Address:    "1 King St W",
			City:       "Toronto",
			Province:   "ON",
			PostalCode: "M5H 1A1",
		},
		Items: []order.OrderItem{
			{ProductName: "Milk", Quantity: 2, PriceAtPurchase: dec("3.50")},
			{ProductName: "Cheese", Quantity: 1, PriceAtPurchase: dec("10.00")},
		},
		Discount: dec("1.00"),
	}
}

func TestOrderService_CreateOrder_Success(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	placedAt := time.Date(2025, 4, 16, 9, 30, 0, 0, time.UTC)
	svc := order.NewService(mockRepo,
		order.WithTaxRate(dec("0.13")),
		order.WithClock(func() time.Time { return placedAt }),
	)

	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*order.Order")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*order.Order).ID = 7
		}).
		Return(nil).
		Once()

	created, err := svc.CreateOrder(context.Background(), validNewOrder())
	require.NoError(t, err)
	require.NotNil(t, created)

	assert.Equal(t, int64(7), created.ID)
	assert.Equal(t, order.StatusPending, created.Status)
	assert.Equal(t, "17.00", created.Subtotal.StringFixed(2))
	assert.Equal(t, "2.21", created.Tax.StringFixed(2))
	assert.Equal(t, "1.00", created.Discount.StringFixed(2))
	assert.Equal(t, "18.21", created.Total.StringFixed(2))
	assert.True(t, created.TotalConsistent())
	assert.Equal(t, "Jane", created.Customer.FirstName)
	assert.Equal(t, placedAt, created.PlacedAt)
	require.Len(t, created.Items, 2)
	assert.Equal(t, "Milk", created.Items[0].ProductName)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_CreateOrder_ValidationErrors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(o *order.NewOrder)
		wantField string
	}{
		{
			name:      "missing_first_name",
			mutate:    func(o *order.NewOrder) { o.Customer.FirstName = "  " },
			wantField: "customer.first_name",
		},
		{
			name:      "missing_last_name",
			mutate:    func(o *order.NewOrder) { o.Customer.LastName = "" },
			wantField: "customer.last_name",
		},
		{
			name:      "bad_email",
			mutate:    func(o *order.NewOrder) { o.Customer.Email = "not-an-email" },
			wantField: "customer.email",
		},
		{
			name:      "no_items",
			mutate:    func(o *order.NewOrder) { o.Items = nil },
			wantField: "items",
		},
		{
			name:      "empty_product_name",
			mutate:    func(o *order.NewOrder) { o.Items[1].ProductName = "" },
			wantField: "items[1].product_name",
		},
		{
			name:      "zero_quantity",
			mutate:    func(o *order.NewOrder) { o.Items[0].Quantity = 0 },
			wantField: "items[0].quantity",
		},
		{
			name:      "negative_price",
			mutate:    func(o *order.NewOrder) { o.Items[0].PriceAtPurchase = dec("-1") },
			wantField: "items[0].price_at_purchase",
		},
		{
			name:      "quantity_exceeds_integer_column",
			mutate:    func(o *order.NewOrder) { o.Items[0].Quantity = db.MaxInteger + 1 },
			wantField: "items[0].quantity",
		},
		{
			name:      "price_exceeds_numeric_column",
			mutate:    func(o *order.NewOrder) { o.Items[0].PriceAtPurchase = dec("1e13") },
			wantField: "items[0].price_at_purchase",
		},
		{
			name:      "discount_exceeds_numeric_column",
			mutate:    func(o *order.NewOrder) { o.Discount = dec("10000000000") },
			wantField: "discount",
		},
		{
			name:      "subtotal_exceeds_numeric_column",
			mutate:    func(o *order.NewOrder) { o.Items[1].PriceAtPurchase = dec("9999999999") },
			wantField: "items",
		},
		{
			name:      "negative_discount",
			mutate:    func(o *order.NewOrder) { o.Discount = dec("-0.01") },
			wantField: "discount",
		},
		{
			name:      "discount_exceeds_total",
			mutate:    func(o *order.NewOrder) { o.Discount = dec("19.22") },
			wantField: "discount",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockOrderRepository)
			svc := order.NewService(mockRepo, order.WithTaxRate(dec("0.13")))

			input := validNewOrder()
			tt.mutate(&input)

			created, err := svc.CreateOrder(context.Background(), input)
			require.Error(t, err)
			assert.Nil(t, created)

			var vErr *apperr.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.wantField, vErr.Field)
			mockRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestOrderService_CreateOrder_DiscountEqualToTotalIsAllowed(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo, order.WithTaxRate(dec("0.13")))

	input := validNewOrder()
	input.Discount = dec("19.21")

	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*order.Order")).Return(nil).Once()

	created, err := svc.CreateOrder(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, created.Total.IsZero())
	assert.True(t, created.TotalConsistent())
	mockRepo.AssertExpectations(t)
}

func TestOrderService_CreateOrder_StoreUnavailable(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*order.Order")).
		Return(apperr.Unavailable("repository: insert order", context.DeadlineExceeded)).
		Once()

	created, err := svc.CreateOrder(context.Background(), validNewOrder())
	require.Error(t, err)
	assert.Nil(t, created)
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_GetOrder(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	expected := sampleOrder(7, order.StatusPending, "37.61", "4.89", "0")
	mockRepo.On("GetByID", mock.Anything, int64(7)).Return(&expected, nil).Once()
	mockRepo.On("GetByID", mock.Anything, int64(8)).Return(nil, &apperr.NotFoundError{Resource: "order", ID: 8}).Once()

	found, err := svc.GetOrder(context.Background(), 7)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(expected, *found, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })))

	missing, err := svc.GetOrder(context.Background(), 8)
	require.Error(t, err)
	assert.Nil(t, missing)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	mockRepo.AssertExpectations(t)
}

// Order #7 Pending with total 42.50 is approved; the total does not move.
func TestOrderService_UpdateStatus_ApprovePending(t *testing.T) {
	repo := newMemoryRepository(sampleOrder(7, order.StatusPending, "37.61", "4.89", "0"))
	svc := order.NewService(repo)

	updated, err := svc.UpdateStatus(context.Background(), 7, order.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, order.StatusApproved, updated.Status)
	assert.Equal(t, "42.50", updated.Total.StringFixed(2))
	assert.True(t, updated.TotalConsistent())
	assert.Equal(t, order.StatusApproved, repo.status(7))
}

// Order #7 Completed cannot go back to Pending.
func TestOrderService_UpdateStatus_CompletedToPending(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	completed := sampleOrder(7, order.StatusCompleted, "37.61", "4.89", "0")
	mockRepo.On("GetByID", mock.Anything, int64(7)).Return(&completed, nil).Once()

	updated, err := svc.UpdateStatus(context.Background(), 7, order.StatusPending)
	require.Error(t, err)
	assert.Nil(t, updated)

	var transitionErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, order.StatusCompleted, transitionErr.From)
	assert.Equal(t, order.StatusPending, transitionErr.To)
	assert.False(t, transitionErr.Concurrent)
	mockRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_UpdateStatus_AllPairs(t *testing.T) {
	for _, from := range order.Statuses {
		for _, to := range order.Statuses {
			t.Run(from.String()+"_to_"+to.String(), func(t *testing.T) {
				initial := sampleOrder(1, from, "10.00", "1.30", "0.50")
				repo := newMemoryRepository(initial)
				svc := order.NewService(repo)

				updated, err := svc.UpdateStatus(context.Background(), 1, to)

				if from.CanTransitionTo(to) {
					require.NoError(t, err)
					assert.Equal(t, to, updated.Status)
					assert.Equal(t, to, repo.status(1))
					assert.True(t, updated.TotalConsistent())
					assert.True(t, initial.Total.Equal(updated.Total))
					return
				}

				var transitionErr *order.InvalidTransitionError
				require.ErrorAs(t, err, &transitionErr)
				assert.Equal(t, from, transitionErr.From)
				assert.Equal(t, to, transitionErr.To)
				assert.Equal(t, from, repo.status(1), "status must be left unchanged")
			})
		}
	}
}

func TestOrderService_UpdateStatus_UnknownTarget(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	_, err := svc.UpdateStatus(context.Background(), 7, order.Status(0))

	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "status", vErr.Field)
	mockRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestOrderService_UpdateStatus_NotFound(t *testing.T) {
	repo := newMemoryRepository()
	svc := order.NewService(repo)

	updated, err := svc.UpdateStatus(context.Background(), 404, order.StatusApproved)
	require.Error(t, err)
	assert.Nil(t, updated)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOrderService_UpdateStatus_LostRace(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	pending := sampleOrder(9, order.StatusPending, "10.00", "0", "0")
	mockRepo.On("GetByID", mock.Anything, int64(9)).Return(&pending, nil).Once()
	mockRepo.On("UpdateStatus", mock.Anything, int64(9), order.StatusPending, order.StatusCancelled).
		Return(nil, &order.StatusConflictError{OrderID: 9, Current: order.StatusCompleted}).
		Once()

	_, err := svc.UpdateStatus(context.Background(), 9, order.StatusCancelled)

	var transitionErr *order.InvalidTransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.True(t, transitionErr.Concurrent)
	assert.Equal(t, order.StatusCompleted, transitionErr.From)
	assert.Equal(t, order.StatusCancelled, transitionErr.To)
	mockRepo.AssertExpectations(t)
	mockRepo.AssertNumberOfCalls(t, "UpdateStatus", 1)
}

// Another request approved the order first; completing it is still allowed
// from Approved, so the update goes through.
func TestOrderService_UpdateStatus_LostRaceToCompatibleStatus(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	pending := sampleOrder(9, order.StatusPending, "10.00", "0", "0")
	completed := sampleOrder(9, order.StatusCompleted, "10.00", "0", "0")
	mockRepo.On("GetByID", mock.Anything, int64(9)).Return(&pending, nil).Once()
	mockRepo.On("UpdateStatus", mock.Anything, int64(9), order.StatusPending, order.StatusCompleted).
		Return(nil, &order.StatusConflictError{OrderID: 9, Current: order.StatusApproved}).
		Once()
	mockRepo.On("UpdateStatus", mock.Anything, int64(9), order.StatusApproved, order.StatusCompleted).
		Return(&completed, nil).
		Once()

	updated, err := svc.UpdateStatus(context.Background(), 9, order.StatusCompleted)

	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, updated.Status)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_UpdateStatus_ApproveThenCompleteRace(t *testing.T) {
	for round := 0; round < 50; round++ {
		repo := newMemoryRepository(sampleOrder(9, order.StatusPending, "20.00", "2.60", "0"))
		svc := order.NewService(repo)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			errs  = make([]error, 2)
		)
		for i, next := range []order.Status{order.StatusApproved, order.StatusCompleted} {
			wg.Add(1)
			go func(i int, next order.Status) {
				defer wg.Done()
				<-start
				_, errs[i] = svc.UpdateStatus(context.Background(), 9, next)
			}(i, next)
		}
		close(start)
		wg.Wait()

		// Complete always succeeds. Approve fails only when it ran after Complete.
		require.NoError(t, errs[1])
		if errs[0] != nil {
			var transitionErr *order.InvalidTransitionError
			require.ErrorAs(t, errs[0], &transitionErr)
			assert.Equal(t, order.StatusCompleted, transitionErr.From)
		}
		assert.Equal(t, order.StatusCompleted, repo.status(9))
	}
}

// Two requests race to complete order #9: exactly one wins, the other sees
// the order already Completed.
func TestOrderService_UpdateStatus_ConcurrentCompletion(t *testing.T) {
	for round := 0; round < 50; round++ {
		repo := newMemoryRepository(sampleOrder(9, order.StatusPending, "20.00", "2.60", "0"))
		svc := order.NewService(repo)

		var (
			wg      sync.WaitGroup
			start   = make(chan struct{})
			results = make([]error, 2)
		)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				_, results[i] = svc.UpdateStatus(context.Background(), 9, order.StatusCompleted)
			}(i)
		}
		close(start)
		wg.Wait()

		succeeded := 0
		for _, err := range results {
			if err == nil {
				succeeded++
				continue
			}
			var transitionErr *order.InvalidTransitionError
			require.ErrorAs(t, err, &transitionErr)
			assert.Equal(t, order.StatusCompleted, transitionErr.From)
			assert.Equal(t, order.StatusCompleted, transitionErr.To)
		}
		require.Equal(t, 1, succeeded)
		assert.Equal(t, order.StatusCompleted, repo.status(9))
	}
}

func TestOrderService_ListOrders_SortsAndFiltersByDay(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	loc := time.FixedZone("EST", -5*60*60)
	svc := order.NewService(mockRepo, order.WithLocation(loc))

	approved := order.StatusApproved
	wantFrom := time.Date(2025, 4, 16, 0, 0, 0, 0, loc)

	unsorted := []order.Order{
		sampleOrder(3, order.StatusApproved, "10.00", "0", "0"),
		sampleOrder(1, order.StatusApproved, "50.00", "0", "0"),
		sampleOrder(4, order.StatusApproved, "10.00", "0", "0"),
		sampleOrder(2, order.StatusApproved, "10.00", "0", "0"),
		sampleOrder(5, order.StatusApproved, "99.99", "0", "0"),
	}

	mockRepo.On("List", mock.Anything, mock.MatchedBy(func(f order.ListFilter) bool {
		return f.From.Equal(wantFrom) &&
			f.To.Equal(wantFrom.Add(24*time.Hour)) &&
			f.Status != nil && *f.Status == order.StatusApproved
	})).Return(unsorted, nil).Once()

	orders, err := svc.ListOrders(context.Background(), time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC), &approved)
	require.NoError(t, err)

	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []int64{5, 1, 2, 3, 4}, ids)
	mockRepo.AssertExpectations(t)
}

func TestOrderService_ListOrders_RejectsUnknownStatus(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	bogus := order.Status(99)
	_, err := svc.ListOrders(context.Background(), time.Now(), &bogus)

	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "status", vErr.Field)
	mockRepo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestOrderService_DailySummary(t *testing.T) {
	mockRepo := new(MockOrderRepository)
	svc := order.NewService(mockRepo)

	mockRepo.On("List", mock.Anything, mock.AnythingOfType("order.ListFilter")).Return([]order.Order{
		sampleOrder(1, order.StatusCompleted, "40.00", "5.20", "0"),
		sampleOrder(2, order.StatusPending, "10.00", "1.30", "1.30"),
		sampleOrder(3, order.StatusCancelled, "100.00", "13.00", "0"),
	}, nil).Once()

	summary, err := svc.DailySummary(context.Background(), time.Date(2025, 4, 16, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, "2025-04-16", summary.Date)
	assert.Equal(t, 3, summary.Orders)
	assert.Equal(t, map[order.Status]int{
		order.StatusPending:   1,
		order.StatusApproved:  0,
		order.StatusCompleted: 1,
		order.StatusCancelled: 1,
	}, summary.ByStatus)
	assert.Equal(t, "55.20", summary.Revenue.StringFixed(2))
	mockRepo.AssertExpectations(t)
}
