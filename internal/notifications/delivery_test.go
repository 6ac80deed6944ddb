package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"marketplace/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// notificationRepoStub is a stub for repository.NotificationRepository.
type notificationRepoStub struct {
	mu          sync.Mutex
	created     []*models.Notification
	createErr   error
	countUnseen func(uint) (int64, error)
}

func (s *notificationRepoStub) Create(_ context.Context, n *models.Notification) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uint(len(s.created) + 1)
	s.created = append(s.created, n)
	return nil
}
func (s *notificationRepoStub) CountUnseen(_ context.Context, receiverID uint) (int64, error) {
	if s.countUnseen != nil {
		return s.countUnseen(receiverID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, c := range s.created {
		if c.ReceiverID == receiverID && !c.IsSeen {
			n++
		}
	}
	return n, nil
}
func (s *notificationRepoStub) List(context.Context, uint, int, int) ([]models.Notification, int64, error) {
	return nil, 0, nil
}
func (s *notificationRepoStub) MarkSeen(context.Context, uint, uint) error { return nil }
func (s *notificationRepoStub) MarkAllSeen(context.Context, uint) (int64, error) {
	return 0, nil
}

// deviceRepoStub is a stub for repository.PushSubscriptionRepository.
type deviceRepoStub struct {
	mu      sync.Mutex
	devices map[uint][]models.PushSubscription
	deleted []string
}

func (s *deviceRepoStub) Register(context.Context, *models.PushSubscription) error { return nil }
func (s *deviceRepoStub) ListByUser(_ context.Context, userID uint) ([]models.PushSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[userID], nil
}
func (s *deviceRepoStub) Unregister(context.Context, uint, string) error { return nil }
func (s *deviceRepoStub) DeleteByEndpoint(_ context.Context, endpoint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, endpoint)
	return nil
}

type fakePush struct {
	mu   sync.Mutex
	sent []string
	errs map[string]error
}

func (p *fakePush) Send(_ context.Context, sub models.PushSubscription, payload PushPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sub.Endpoint+"|"+payload.Title)
	return p.errs[sub.Endpoint]
}

func (p *fakePush) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type liveSet map[uint]bool

func (l liveSet) IsOnline(userID uint) bool { return l[userID] }

func TestDelivery_InlinePersistsPublishesAndPushes(t *testing.T) {
	notifs := &notificationRepoStub{}
	devices := &deviceRepoStub{devices: map[uint][]models.PushSubscription{
		3: {{ID: 1, UserID: 3, Endpoint: "https://push/a"}, {ID: 2, UserID: 3, Endpoint: "https://push/b"}},
	}}
	push := &fakePush{}

	reg := NewSessionRegistry(decodeNumeric, nil)
	defer func() { _ = reg.Shutdown(context.Background()) }()
	s := &fakeSession{}
	_, err := reg.OnSessionStart("c", "3", s)
	require.NoError(t, err)

	bridge := NewLocalBridge()
	require.NoError(t, reg.StartWiring(context.Background(), bridge))

	d := NewDelivery(notifs, devices, bridge, reg, push, DeliveryConfig{})
	n := &models.Notification{ReceiverID: 3, Title: "Léa a aimé votre post !", URL: "/bons-plans/tv-1", Type: models.NotificationLike}
	require.NoError(t, d.Deliver(context.Background(), n))

	require.Len(t, notifs.created, 1)
	require.Len(t, s.received(), 1)

	var msg struct {
		Type    string        `json:"type"`
		Payload UnseenPayload `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(s.received()[0]), &msg))
	assert.Equal(t, MessageNewNotification, msg.Type)
	assert.Equal(t, int64(1), msg.Payload.Unseen)
	assert.Equal(t, "/bons-plans/tv-1", msg.Payload.Notification.URL)

	assert.Equal(t, 2, push.count())
}

func TestDelivery_OfflineReceiverStillGetsPush(t *testing.T) {
	notifs := &notificationRepoStub{}
	devices := &deviceRepoStub{devices: map[uint][]models.PushSubscription{
		5: {{ID: 1, UserID: 5, Endpoint: "https://push/a"}},
	}}
	push := &fakePush{}
	bridge := NewLocalBridge()

	var published int
	require.NoError(t, bridge.Subscribe(context.Background(), func(string, string) { published++ }))

	d := NewDelivery(notifs, devices, bridge, liveSet{}, push, DeliveryConfig{})
	require.NoError(t, d.Deliver(context.Background(), &models.Notification{ReceiverID: 5, Title: "t"}))

	assert.Zero(t, published)
	assert.Equal(t, 1, push.count())
}

func TestDelivery_OneFailingDeviceDoesNotBlockOthers(t *testing.T) {
	notifs := &notificationRepoStub{}
	devices := &deviceRepoStub{devices: map[uint][]models.PushSubscription{
		5: {
			{ID: 1, UserID: 5, Endpoint: "https://push/broken"},
			{ID: 2, UserID: 5, Endpoint: "https://push/gone"},
			{ID: 3, UserID: 5, Endpoint: "https://push/ok"},
		},
	}}
	push := &fakePush{errs: map[string]error{
		"https://push/broken": errors.New("timeout"),
		"https://push/gone":   ErrSubscriptionGone,
	}}

	d := NewDelivery(notifs, devices, NewLocalBridge(), liveSet{}, push, DeliveryConfig{})
	require.NoError(t, d.Deliver(context.Background(), &models.Notification{ReceiverID: 5, Title: "t"}))

	assert.Equal(t, 3, push.count())
	assert.Equal(t, []string{"https://push/gone"}, devices.deleted)
	assert.Len(t, notifs.created, 1)
}

func TestDelivery_PersistFailureIsReturned(t *testing.T) {
	notifs := &notificationRepoStub{createErr: errors.New("db down")}
	push := &fakePush{}
	d := NewDelivery(notifs, &deviceRepoStub{}, NewLocalBridge(), liveSet{}, push, DeliveryConfig{})

	err := d.Deliver(context.Background(), &models.Notification{ReceiverID: 1})
	assert.Error(t, err)
	assert.Zero(t, push.count())
}

func TestDelivery_WorkersFanOutAsynchronously(t *testing.T) {
	notifs := &notificationRepoStub{}
	devices := &deviceRepoStub{devices: map[uint][]models.PushSubscription{
		8: {{ID: 1, UserID: 8, Endpoint: "https://push/a"}},
	}}
	push := &fakePush{}

	d := NewDelivery(notifs, devices, NewLocalBridge(), liveSet{}, push, DeliveryConfig{Workers: 2, QueueSize: 16})
	d.Start()

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Deliver(context.Background(), &models.Notification{ReceiverID: 8, Title: "t"}))
	}

	assert.Eventually(t, func() bool { return push.count() == 5 }, testEventuallyTimeout, testPollInterval)
	require.NoError(t, d.Stop(context.Background()))
	assert.ErrorIs(t, d.Deliver(context.Background(), &models.Notification{ReceiverID: 8}), ErrDeliveryStopped)
}

func TestDelivery_PushUnseen(t *testing.T) {
	notifs := &notificationRepoStub{countUnseen: func(uint) (int64, error) { return 4, nil }}
	reg := NewSessionRegistry(decodeNumeric, nil)
	defer func() { _ = reg.Shutdown(context.Background()) }()
	s := &fakeSession{}
	_, _ = reg.OnSessionStart("c", "2", s)

	bridge := NewLocalBridge()
	require.NoError(t, reg.StartWiring(context.Background(), bridge))

	d := NewDelivery(notifs, &deviceRepoStub{}, bridge, reg, nil, DeliveryConfig{})
	require.NoError(t, d.PushUnseen(context.Background(), 2))

	require.Len(t, s.received(), 1)
	assert.JSONEq(t, `{"type":"unseen-count","payload":{"unseen":4}}`, s.received()[0])
}

func TestNewPushPayload(t *testing.T) {
	p := NewPushPayload(&models.Notification{Title: "Nouveau", URL: "/gratuit/x-2"})
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"title": "Nouveau",
		"data": {"url": "/gratuit/x-2"},
		"icon": "/assets/images/logo.svg",
		"badge": "/assets/images/icons/notification.svg",
		"sound": "default"
	}`, string(raw))
}
