package notification

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
)

var (
	// errors
	ErrNotFound = errors.New("notification not found")

	errUnknownDigest = "unknown digest frequency %q"

	genericTemplate = "notification"
	digestTemplate  = "digest"
)

type (
	Repository interface {
		// GetPreferences returns the stored preferences of the user; missing categories use defaults.
		GetPreferences(ctx context.Context, userID string) ([]Preference, error)
		// SavePreferences upserts the given preferences of the user.
		SavePreferences(ctx context.Context, userID string, prefs ...Preference) error
		DeletePreferences(ctx context.Context, userID string) error
		// QueryDigestSubscribers returns, per user ID, the email enabled preferences having the given digest.
		QueryDigestSubscribers(ctx context.Context, digest string) (map[string][]Preference, error)

		CreateNotifications(ctx context.Context, ns ...Notification) ([]Notification, error)
		// QueryNotifications returns matching notifications, newest first.
		QueryNotifications(ctx context.Context, filter *QueryFilter) ([]Notification, error)
		CountUnread(ctx context.Context, userID string) (int, error)
		// MarkRead marks the user's given notifications (all of them when ids is empty) as read.
		MarkRead(ctx context.Context, userID string, at time.Time, ids ...string) (int, error)
	}

	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo    Repository
		users   UserGetter
		mailSvc core.EmailService
	}

	genericData struct {
		Name  string
		Title string
		Body  string
	}

	digestData struct {
		Name          string
		Period        string
		Notifications []Notification
	}
)

func NewService(repo Repository, users UserGetter, mailSvc core.EmailService) *Service {
	return &Service{repo: repo, users: users, mailSvc: mailSvc}
}

// GetPreferences returns the user's preference for every category, defaults included.
func (svc *Service) GetPreferences(ctx context.Context, userID string) ([]Preference, error) {
	stored, err := svc.repo.GetPreferences(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "getting preferences")
	}
	byCat := make(map[string]Preference, len(stored))
	for _, p := range stored {
		byCat[p.Category] = p
	}
	prefs := make([]Preference, 0, len(Categories))
	for _, cat := range Categories {
		if p, ok := byCat[cat]; ok {
			prefs = append(prefs, p)
		} else {
			prefs = append(prefs, DefaultPreference(cat))
		}
	}
	return prefs, nil
}

func (svc *Service) preference(ctx context.Context, userID, category string) (Preference, error) {
	prefs, err := svc.GetPreferences(ctx, userID)
	if err != nil {
		return Preference{}, err
	}
	for _, p := range prefs {
		if p.Category == category {
			return p, nil
		}
	}
	return DefaultPreference(category), nil
}

func (svc *Service) UpdatePreferences(ctx context.Context, userID string, pu PreferenceUpdates) ([]Preference, error) {
	current, err := svc.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	byCat := make(map[string]Preference, len(current))
	for _, p := range current {
		byCat[p.Category] = p
	}

	changed := make([]Preference, 0, len(pu.Preferences))
	for _, upd := range pu.Preferences {
		p := byCat[upd.Category]
		if upd.Email != nil {
			p.Email = *upd.Email
		}
		if upd.InApp != nil {
			p.InApp = *upd.InApp
		}
		if upd.Digest != nil {
			p.Digest = *upd.Digest
		}
		byCat[upd.Category] = p
		changed = append(changed, p)
	}
	if err = svc.repo.SavePreferences(ctx, userID, changed...); err != nil {
		return nil, errors.Wrap(err, "saving preferences")
	}
	return svc.GetPreferences(ctx, userID)
}

func (svc *Service) ResetPreferences(ctx context.Context, userID string) ([]Preference, error) {
	if err := svc.repo.DeletePreferences(ctx, userID); err != nil {
		return nil, errors.Wrap(err, "deleting preferences")
	}
	return svc.GetPreferences(ctx, userID)
}

func (svc *Service) List(ctx context.Context, filter *QueryFilter) ([]Notification, error) {
	filter.Category = core.CleanString(filter.Category, true /* lower */)
	return svc.repo.QueryNotifications(ctx, filter)
}

func (svc *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.repo.CountUnread(ctx, userID)
}

func (svc *Service) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	ids = core.UniqueStrings(ids)
	if len(ids) == 0 {
		return 0, nil
	}
	return svc.repo.MarkRead(ctx, userID, core.NowFunc(), ids...)
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return svc.repo.MarkRead(ctx, userID, core.NowFunc())
}

// Notify delivers msg to every active recipient according to their preference for msg.Category:
// an inbox entry when in-app is on, and an email right away when email is on with an immediate digest.
func (svc *Service) Notify(ctx context.Context, recipients []user.User, msg Message) error {
	now := core.NowFunc()
	inbox := make([]Notification, 0, len(recipients))
	emails := make([]*core.EmailMessage, 0, len(recipients))

	for _, usr := range recipients {
		if !usr.Active() {
			continue
		}
		pref, err := svc.preference(ctx, usr.ID, msg.Category)
		if err != nil {
			return err
		}
		if pref.InApp {
			inbox = append(inbox, Notification{
				UserID:    usr.ID,
				TenantID:  msg.TenantID,
				Category:  msg.Category,
				Title:     msg.Title,
				Body:      msg.Body,
				CreatedAt: now,
			})
		}
		if pref.Email && pref.Digest == DigestImmediate && usr.Email != "" {
			emails = append(emails, svc.emailMessage(usr, msg))
		}
	}

	if len(inbox) > 0 {
		if _, err := svc.repo.CreateNotifications(ctx, inbox...); err != nil {
			return errors.Wrap(err, "creating notifications")
		}
	}
	if len(emails) > 0 {
		svc.mailSvc.SendMessages(emails...)
	}
	return nil
}

func (svc *Service) emailMessage(usr user.User, msg Message) *core.EmailMessage {
	em := &core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      msg.Title,
		TemplateName: msg.Template,
		TemplateData: msg.TemplateData,
	}
	if em.TemplateName == "" {
		em.TemplateName = genericTemplate
		em.TemplateData = genericData{Name: usr.Name, Title: msg.Title, Body: msg.Body}
	}
	return em
}

// SendDigests emails each subscriber of the digest frequency a summary of their unread notifications
// created during the last period. It returns the number of emails sent.
func (svc *Service) SendDigests(ctx context.Context, digest string, now time.Time) (int, error) {
	period, ok := digestPeriods[digest]
	if !ok {
		return 0, errors.Errorf(errUnknownDigest, digest)
	}
	subs, err := svc.repo.QueryDigestSubscribers(ctx, digest)
	if err != nil {
		return 0, errors.Wrap(err, "querying digest subscribers")
	}

	userIDs := make([]string, 0, len(subs))
	for id := range subs {
		userIDs = append(userIDs, id)
	}
	sort.Strings(userIDs)

	emails := make([]*core.EmailMessage, 0, len(userIDs))
	for _, userID := range userIDs {
		cats := make([]string, 0, len(subs[userID]))
		for _, p := range subs[userID] {
			cats = append(cats, p.Category)
		}
		ns, err := svc.repo.QueryNotifications(ctx, &QueryFilter{
			UserID:      userID,
			UnreadOnly:  true,
			Categories:  cats,
			CreatedFrom: now.Add(-period),
		})
		if err != nil {
			return 0, errors.Wrap(err, "querying notifications")
		}
		if len(ns) == 0 {
			continue
		}

		usr, err := svc.users.GetByID(ctx, userID)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				continue
			}
			return 0, errors.Wrap(err, "finding user by ID")
		}
		if !usr.Active() || usr.Email == "" {
			continue
		}
		emails = append(emails, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      fmt.Sprintf("Your %s digest", digest),
			TemplateName: digestTemplate,
			TemplateData: digestData{Name: usr.Name, Period: digest, Notifications: ns},
		})
	}

	if len(emails) > 0 {
		svc.mailSvc.SendMessages(emails...)
	}
	return len(emails), nil
}
