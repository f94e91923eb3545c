package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/internal/gcal"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
	"github.com/sshindanai/google-calendar-reminders/server/internal/models/dbmodel"
	"github.com/sshindanai/google-calendar-reminders/server/internal/pagination"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
)

var testLogger = zap.NewNop().Sugar()

// memStore backs the fake repositories with maps.
type memStore struct {
	mu        sync.Mutex
	nextID    uint
	users     map[uint]*dbmodel.Users
	events    map[uint]*dbmodel.CalendarEvents
	reminders map[uint]*dbmodel.EventReminders
	watches   map[uint]*dbmodel.Watches

	// failReminderWrites makes the next n reminder inserts fail
	failReminderWrites int
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[uint]*dbmodel.Users{},
		events:    map[uint]*dbmodel.CalendarEvents{},
		reminders: map[uint]*dbmodel.EventReminders{},
		watches:   map[uint]*dbmodel.Watches{},
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

type fakeUserRepo struct{ *memStore }

func (r fakeUserRepo) Create(user dbmodel.Users) (dbmodel.Users, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.GoogleID == user.GoogleID || u.Email == user.Email {
			return dbmodel.Users{}, errors.New("duplicate user")
		}
	}
	user.ID = r.id()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	stored := user
	r.users[user.ID] = &stored
	return user, nil
}

func (r fakeUserRepo) Update(user *dbmodel.Users, updateData *dbmodel.Users) (*dbmodel.Users, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if updateData.Email != "" {
		user.Email = updateData.Email
	}
	if updateData.AccessToken != "" {
		user.AccessToken = updateData.AccessToken
	}
	if updateData.RefreshToken != "" {
		user.RefreshToken = updateData.RefreshToken
	}
	if updateData.TokenExpiresAt != nil {
		user.TokenExpiresAt = updateData.TokenExpiresAt
	}
	stored := *user
	r.users[user.ID] = &stored
	return user, nil
}

func (r fakeUserRepo) UpdateTokens(userID uint, accessToken string, refreshToken string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return errors.New("record not found")
	}
	u.AccessToken = accessToken
	if refreshToken != "" {
		u.RefreshToken = refreshToken
	}
	u.TokenExpiresAt = expiresAt
	return nil
}

func (r fakeUserRepo) UpdateSettings(user *dbmodel.Users) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[user.ID]
	if !ok {
		return errors.New("record not found")
	}
	u.PhoneNumber = user.PhoneNumber
	u.SMSEnabled = user.SMSEnabled
	u.NotificationMethod = user.NotificationMethod
	u.SMSConsent = user.SMSConsent
	u.SMSConsentDate = user.SMSConsentDate
	return nil
}

func (r fakeUserRepo) FindByID(id uint) (*dbmodel.Users, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r fakeUserRepo) FindByGoogleID(googleID string) (*dbmodel.Users, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.GoogleID == googleID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeUserRepo) List(opts models.ListUsersOption) (*pagination.Pagination, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	paging := &pagination.Pagination{Limit: opts.Limit, Page: opts.Page}
	var all []dbmodel.Users
	for _, u := range r.users {
		if opts.HasAccessToken && u.AccessToken == "" {
			continue
		}
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	paging.TotalRows = int64(len(all))
	paging.TotalPages = (len(all) + paging.GetLimit() - 1) / paging.GetLimit()

	start := paging.GetOffset()
	if start > len(all) {
		start = len(all)
	}
	end := start + paging.GetLimit()
	if end > len(all) {
		end = len(all)
	}
	paging.Rows = all[start:end]
	return paging, nil
}

func (r fakeUserRepo) Delete(userID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.events {
		if e.UserID != userID {
			continue
		}
		for rid, rem := range r.reminders {
			if rem.CalendarEventID == id {
				delete(r.reminders, rid)
			}
		}
		delete(r.events, id)
	}
	for id, w := range r.watches {
		if w.UserID == userID {
			delete(r.watches, id)
		}
	}
	delete(r.users, userID)
	return nil
}

type fakeEventRepo struct{ *memStore }

func (r fakeEventRepo) Create(event *dbmodel.CalendarEvents, reminders ...dbmodel.EventReminders) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.UserID == event.UserID && e.EventID == event.EventID {
			return false, nil
		}
	}
	// all or nothing, like the transaction
	if len(reminders) > 0 && r.failReminderWrites > 0 {
		r.failReminderWrites--
		return false, errors.New("insert reminder: connection reset")
	}
	event.ID = r.id()
	stored := *event
	stored.Reminders = nil
	r.events[event.ID] = &stored
	for i := range reminders {
		reminder := reminders[i]
		reminder.ID = r.id()
		reminder.CalendarEventID = event.ID
		r.reminders[reminder.ID] = &reminder
	}
	return true, nil
}

func (r fakeEventRepo) UpdateDetails(event *dbmodel.CalendarEvents) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[event.ID]
	if !ok {
		return errors.New("record not found")
	}
	e.Summary = event.Summary
	e.StartTime = event.StartTime
	e.EndTime = event.EndTime
	return nil
}

func (r fakeEventRepo) FindByID(id uint) (*dbmodel.CalendarEvents, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (r fakeEventRepo) FindForUser(userID uint, id uint) (*dbmodel.CalendarEvents, error) {
	e, err := r.FindByID(id)
	if err != nil || e == nil || e.UserID != userID {
		return nil, err
	}
	return e, nil
}

func (r fakeEventRepo) FindByEventID(userID uint, eventID string) (*dbmodel.CalendarEvents, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.UserID == userID && e.EventID == eventID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeEventRepo) ListUpcoming(userID uint, from time.Time, limit int) ([]dbmodel.CalendarEvents, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dbmodel.CalendarEvents
	for _, e := range r.events {
		if e.UserID != userID || !e.StartTime.After(from) {
			continue
		}
		cp := *e
		cp.Reminders = nil
		for _, rem := range r.reminders {
			if rem.CalendarEventID == e.ID {
				cp.Reminders = append(cp.Reminders, *rem)
			}
		}
		sort.Slice(cp.Reminders, func(i, j int) bool { return cp.Reminders[i].MinutesBefore < cp.Reminders[j].MinutesBefore })
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeReminderRepo struct{ *memStore }

func (r fakeReminderRepo) Create(reminder *dbmodel.EventReminders) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reminder.ID = r.id()
	stored := *reminder
	stored.CalendarEvent = nil
	r.reminders[reminder.ID] = &stored
	return nil
}

func (r fakeReminderRepo) ListByEvent(calendarEventID uint) ([]dbmodel.EventReminders, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dbmodel.EventReminders
	for _, rem := range r.reminders {
		if rem.CalendarEventID == calendarEventID {
			out = append(out, *rem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MinutesBefore < out[j].MinutesBefore })
	return out, nil
}

func (r fakeReminderRepo) CountByEvent(calendarEventID uint) (int64, error) {
	list, err := r.ListByEvent(calendarEventID)
	return int64(len(list)), err
}

func (r fakeReminderRepo) FindByID(id uint) (*dbmodel.EventReminders, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok {
		return nil, nil
	}
	cp := *rem
	if e, ok := r.events[rem.CalendarEventID]; ok {
		ev := *e
		cp.CalendarEvent = &ev
	}
	return &cp, nil
}

func (r fakeReminderRepo) Delete(calendarEventID uint, id uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok || rem.CalendarEventID != calendarEventID {
		return false, nil
	}
	delete(r.reminders, id)
	return true, nil
}

func (r fakeReminderRepo) PendingInWindow(from time.Time, to time.Time) ([]dbmodel.EventReminders, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dbmodel.EventReminders
	for _, rem := range r.reminders {
		e, ok := r.events[rem.CalendarEventID]
		if !ok || rem.Sent {
			continue
		}
		if !e.StartTime.After(from) || e.StartTime.After(to) {
			continue
		}
		cp := *rem
		ev := *e
		cp.CalendarEvent = &ev
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r fakeReminderRepo) Claim(id uint, now time.Time, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok || rem.Sent {
		return false, nil
	}
	if rem.DispatchingAt != nil && !rem.DispatchingAt.Before(staleBefore) {
		return false, nil
	}
	claimedAt := now
	rem.DispatchingAt = &claimedAt
	return true, nil
}

func (r fakeReminderRepo) MarkSent(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rem, ok := r.reminders[id]
	if !ok {
		return errors.New("record not found")
	}
	rem.Sent = true
	return nil
}

type fakeWatchRepo struct{ *memStore }

func (r fakeWatchRepo) Create(watch *dbmodel.Watches) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.watches {
		if w.ChannelID == watch.ChannelID {
			return errors.New("duplicate channel")
		}
		if watch.Active && w.Active && w.UserID == watch.UserID {
			return errors.New("user already has an active watch")
		}
	}
	watch.ID = r.id()
	stored := *watch
	r.watches[watch.ID] = &stored
	return nil
}

func (r fakeWatchRepo) FindByID(id uint) (*dbmodel.Watches, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r fakeWatchRepo) FindActiveByChannel(channelID string, resourceID string) (*dbmodel.Watches, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.watches {
		if w.Active && w.ChannelID == channelID && w.ResourceID == resourceID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeWatchRepo) filter(keep func(*dbmodel.Watches) bool) []dbmodel.Watches {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dbmodel.Watches
	for _, w := range r.watches {
		if keep(w) {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r fakeWatchRepo) ListActiveByUser(userID uint) ([]dbmodel.Watches, error) {
	return r.filter(func(w *dbmodel.Watches) bool { return w.Active && w.UserID == userID }), nil
}

func (r fakeWatchRepo) HasActive(userID uint) (bool, error) {
	list, _ := r.ListActiveByUser(userID)
	return len(list) > 0, nil
}

func (r fakeWatchRepo) ListExpiringBetween(from time.Time, to time.Time) ([]dbmodel.Watches, error) {
	return r.filter(func(w *dbmodel.Watches) bool {
		return w.Active && !w.Expiration.Before(from) && w.Expiration.Before(to)
	}), nil
}

func (r fakeWatchRepo) ListExpired(now time.Time) ([]dbmodel.Watches, error) {
	return r.filter(func(w *dbmodel.Watches) bool { return w.Active && w.Expiration.Before(now) }), nil
}

func (r fakeWatchRepo) Deactivate(id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[id]
	if !ok {
		return errors.New("record not found")
	}
	w.Active = false
	return nil
}

func (r fakeWatchRepo) activeCount(userID uint) int {
	list, _ := r.ListActiveByUser(userID)
	return len(list)
}

// fakeCalendar is a scripted gcal.Client.
type fakeCalendar struct {
	mu         sync.Mutex
	events     []*calendar.Event
	listErrs   []error
	listCalls  int
	watchErr   error
	watched    []string
	stopErrs   map[string]error
	stopped    []string
	expiration int64
}

func (f *fakeCalendar) ListUpcoming(ctx context.Context, timeMin time.Time, timeMax time.Time) ([]*calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if len(f.listErrs) > 0 {
		err := f.listErrs[0]
		f.listErrs = f.listErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.events, nil
}

func (f *fakeCalendar) Watch(ctx context.Context, channelID string, address string, token string) (*calendar.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watchErr != nil {
		return nil, f.watchErr
	}
	f.watched = append(f.watched, channelID)
	return &calendar.Channel{
		Id:         channelID,
		ResourceId: "resource-" + channelID,
		Expiration: f.expiration,
	}, nil
}

func (f *fakeCalendar) Stop(ctx context.Context, channelID string, resourceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.stopErrs[channelID]; ok {
		return err
	}
	f.stopped = append(f.stopped, channelID)
	return nil
}

type fakeClients struct {
	client gcal.Client
}

func (f fakeClients) ClientFor(ctx context.Context, userID uint) (gcal.Client, error) {
	return f.client, nil
}

type fakeVault struct {
	mu         sync.Mutex
	refreshes  int
	refreshErr error
}

func (v *fakeVault) Credential(ctx context.Context, userID uint) (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: "access"}, nil
}

func (v *fakeVault) Refresh(ctx context.Context, userID uint) (*oauth2.Token, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.refreshes++
	if v.refreshErr != nil {
		return nil, v.refreshErr
	}
	return &oauth2.Token{AccessToken: "refreshed"}, nil
}

func (v *fakeVault) TokenSource(ctx context.Context, userID uint) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "access"})
}

type fakeNotifier struct {
	mu       sync.Mutex
	emailOK  bool
	smsOK    bool
	emails   []uint
	messages []uint
}

func (n *fakeNotifier) SendEmail(ctx context.Context, user *dbmodel.Users, event *dbmodel.CalendarEvents) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emails = append(n.emails, event.ID)
	return n.emailOK
}

func (n *fakeNotifier) SendSMS(ctx context.Context, user *dbmodel.Users, event *dbmodel.CalendarEvents) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, event.ID)
	return n.smsOK
}

func seedUser(store *memStore, mutate func(*dbmodel.Users)) *dbmodel.Users {
	n := store.nextID + 1
	user := dbmodel.Users{
		GoogleID:           fmt.Sprintf("google-%d", n),
		Email:              fmt.Sprintf("user%d@example.com", n),
		NotificationMethod: "both",
	}
	if mutate != nil {
		mutate(&user)
	}
	created, _ := fakeUserRepo{store}.Create(user)
	return &created
}

func timedEvent(id string, summary string, start time.Time, d time.Duration) *calendar.Event {
	return &calendar.Event{
		Id:      id,
		Summary: summary,
		Status:  "confirmed",
		Start:   &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: start.Add(d).Format(time.RFC3339)},
	}
}
