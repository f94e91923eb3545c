package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/sshindanai/google-calendar-reminders/server/constant"
	models "github.com/sshindanai/google-calendar-reminders/server/internal/models"
)

const (
	webhookTimeout = 5 * time.Second
	healthTimeout  = 2 * time.Second
	oauthTimeout   = 15 * time.Second
)

const completeHTML = `
<!DOCTYPE html>
<html>
	<head>
		<script>
			window.close();
		</script>
	</head>
	<body>
		<p>Completed connecting to Google Calendar. Please close this window.</p>
	</body>
</html>
`

func (a *App) registerRouter() {
	router := mux.NewRouter()
	router.Use(a.recoverer)

	// push notifications and health
	router.HandleFunc(constant.WEBHOOK_PATH, a.handleWebhook).Methods(http.MethodPost)
	router.HandleFunc("/up", a.health).Methods(http.MethodGet)

	// sign in
	router.HandleFunc(constant.OAUTH_CONNECT_PATH, a.connectCalendar).Methods(http.MethodGet)
	router.HandleFunc(constant.OAUTH_COMPLETE_PATH, a.completeCalendar).Methods(http.MethodGet)

	// management surface
	user := "/api/v1/users/{id:[0-9]+}"
	reminders := user + "/events/{event_id:[0-9]+}/reminders"
	router.Handle(user, a.requireUser(a.getUser)).Methods(http.MethodGet)
	router.Handle(user+"/events", a.requireUser(a.listEvents)).Methods(http.MethodGet)
	router.Handle(user+"/settings", a.requireUser(a.updateSettings)).Methods(http.MethodPatch)
	router.Handle(reminders, a.requireUser(a.listReminders)).Methods(http.MethodGet)
	router.Handle(reminders, a.requireUser(a.createReminder)).Methods(http.MethodPost)
	router.Handle(reminders+"/{reminder_id:[0-9]+}", a.requireUser(a.deleteReminder)).Methods(http.MethodDelete)
	a.router = router
}

// requireUser admits a request only when the front end vouches for the user in the path.
func (a *App) requireUser(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authUserID := r.Header.Get(constant.USER_ID_HEADER)
		if authUserID == "" {
			http.Error(w, "Not authorized", http.StatusUnauthorized)
			return
		}
		if authUserID != mux.Vars(r)["id"] {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	})
}

func (a *App) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), webhookTimeout)
	defer cancel()

	result := a.services.webhookService.Handle(ctx, models.WebhookNotification{
		ChannelID:     r.Header.Get(constant.HEADER_CHANNEL_ID),
		ChannelToken:  r.Header.Get(constant.HEADER_CHANNEL_TOKEN),
		ResourceID:    r.Header.Get(constant.HEADER_RESOURCE_ID),
		ResourceState: r.Header.Get(constant.HEADER_RESOURCE_STATE),
	})
	switch result {
	case models.WebhookAcknowledged:
		w.WriteHeader(http.StatusOK)
	case models.WebhookNotFound:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := a.ping(ctx); err != nil {
		a.logger.Warnw("health check failed", "err", err.Error())
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "ok")
}

func (a *App) connectCalendar(w http.ResponseWriter, r *http.Request) {
	state, err := a.services.stateService.Create()
	if err != nil {
		http.Error(w, "Failed to save state", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, a.services.authenticator.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (a *App) completeCalendar(w http.ResponseWriter, r *http.Request) {
	if reason := r.FormValue("error"); reason != "" {
		http.Error(w, "Authorization was not granted", http.StatusBadRequest)
		return
	}

	ok, err := a.services.stateService.Consume(r.FormValue("state"))
	if err != nil {
		a.logger.Errorw("error when consume connect state", "err", err.Error())
		http.Error(w, "Failed to get state", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), oauthTimeout)
	defer cancel()
	token, identity, err := a.services.authenticator.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		a.logger.Warnw("error setting up config exchange", "err", err.Error())
		if errors.Is(err, models.ErrAuth) {
			http.Error(w, "Not authorized", http.StatusUnauthorized)
			return
		}
		http.Error(w, "Error setting up Config Exchange", http.StatusBadGateway)
		return
	}

	var expiresAt *time.Time
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		expiresAt = &expiry
	}
	// persist token to db
	user, isUpdate, err := a.services.userService.UpsertFromOAuth(ctx, models.UpsertUser{
		GoogleID:     identity.GoogleID,
		Email:        identity.Email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiresAt,
	})
	if err != nil {
		a.logger.Errorw("error when upsert user", "err", err.Error())
		http.Error(w, "failed to set token", http.StatusInternalServerError)
		return
	}
	a.logger.Infow("connected calendar", "user_id", user.ID, "returning", isUpdate)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, completeHTML)
}

func (a *App) getUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.services.userService.GetUserByID(userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, user)
}

func (a *App) listEvents(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	events, err := a.services.userService.UpcomingEvents(userID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, events)
}

func (a *App) updateSettings(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req models.UpdateSettings
	if err := Decode(r.Body, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	user, err := a.services.userService.UpdateSettings(userID, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, user)
}

func (a *App) listReminders(w http.ResponseWriter, r *http.Request) {
	userID, eventID, err := userAndEvent(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	reminders, err := a.services.eventReminderService.List(userID, eventID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusOK, reminders)
}

func (a *App) createReminder(w http.ResponseWriter, r *http.Request) {
	userID, eventID, err := userAndEvent(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req models.CreateReminder
	if err := Decode(r.Body, &req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}
	reminder, err := a.services.eventReminderService.Create(userID, eventID, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, reminder)
}

func (a *App) deleteReminder(w http.ResponseWriter, r *http.Request) {
	userID, eventID, err := userAndEvent(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	reminderID, err := pathID(r, "reminder_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.services.eventReminderService.Delete(userID, eventID, reminderID); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func userAndEvent(r *http.Request) (uint, uint, error) {
	userID, err := pathID(r, "id")
	if err != nil {
		return 0, 0, err
	}
	eventID, err := pathID(r, "event_id")
	if err != nil {
		return 0, 0, err
	}
	return userID, eventID, nil
}
