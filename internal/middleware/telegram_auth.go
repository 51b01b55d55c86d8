package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"rifa-app/internal/admins"
	"rifa-app/internal/audit"
)

type TelegramUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

// Principal is the authenticated caller of the admin API. AdminID is nil for
// Telegram admins, who have no AdminUser row.
type Principal struct {
	AdminID            *uint  `json:"admin_id,omitempty"`
	Username           string `json:"username"`
	TelegramID         int64  `json:"telegram_id,omitempty"`
	MustChangePassword bool   `json:"must_change_password"`
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// PrincipalFrom returns the caller stored by AdminAuth, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(ctxKey{}).(*Principal)
	return p
}

type Auth struct {
	Admins           *admins.Store
	Audit            *audit.Recorder
	BotToken         string
	AdminTelegramIDs []int64
}

// AdminAuth accepts BasicAuth against the admin_users table OR a signed
// Telegram WebApp initData from one of AdminTelegramIDs.
func (a *Auth) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Método 1: BasicAuth (acceso web normal)
		if username, password, ok := r.BasicAuth(); ok {
			u, err := a.Admins.Authenticate(r.Context(), username, password)
			switch {
			case errors.Is(err, admins.ErrLocked):
				http.Error(w, "Usuario bloqueado temporalmente por intentos fallidos. Intenta más tarde.", http.StatusForbidden)
				return
			case err != nil:
				if u != nil {
					a.Audit.Record(r.Context(), audit.Entry{
						AdminID: audit.ID(u.ID), Action: audit.LoginFailed,
						EntityType: "AdminUser", EntityID: audit.ID(u.ID),
						Meta: map[string]any{"username": username}, IP: ClientIP(r),
					})
				}
				log.Printf("Login fallido para %q", username)
				unauthorized(w)
				return
			}
			p := &Principal{AdminID: &u.ID, Username: u.Username, MustChangePassword: u.MustChangePassword}
			if p.MustChangePassword && !strings.HasSuffix(r.URL.Path, "/password") {
				http.Error(w, "Debes cambiar tu contraseña antes de continuar.", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
			return
		}

		// Método 2: Telegram initData
		initData := telegramInitData(r)
		if initData != "" {
			user, valid := validateTelegramInitData(initData, a.BotToken)
			if valid {
				if isAdmin(user.ID, a.AdminTelegramIDs) {
					log.Printf("Admin Telegram autenticado: %s (ID: %d)", user.FirstName, user.ID)
					p := &Principal{Username: user.Username, TelegramID: user.ID}
					next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
					return
				}
				log.Printf("Usuario Telegram no es admin: %d", user.ID)
			} else {
				log.Printf("initData inválido")
			}
		}

		unauthorized(w)
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Rifa Admin"`)
	http.Error(w, "Acceso denegado: No autorizado", http.StatusUnauthorized)
}

func telegramInitData(r *http.Request) string {
	if v := r.Header.Get("X-Telegram-Init-Data"); v != "" {
		return v
	}
	if v := r.URL.Query().Get("tg_init_data"); v != "" {
		return v
	}
	if cookie, err := r.Cookie("tg_init_data"); err == nil {
		if decoded, err := url.QueryUnescape(cookie.Value); err == nil {
			return decoded
		}
	}
	return ""
}

// initDataMaxAge bounds how long a signed initData string authenticates.
const initDataMaxAge = 24 * time.Hour

func validateTelegramInitData(initData, botToken string) (*TelegramUser, bool) {
	if botToken == "" {
		return nil, false
	}

	params, err := url.ParseQuery(initData)
	if err != nil {
		return nil, false
	}
	hash := params.Get("hash")
	if hash == "" {
		return nil, false
	}

	// data-check-string: sorted key=value lines, without hash
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + params.Get(k)
	}

	if !hmac.Equal([]byte(signInitData(strings.Join(parts, "\n"), botToken)), []byte(hash)) {
		return nil, false
	}

	authDate, err := strconv.ParseInt(params.Get("auth_date"), 10, 64)
	if err != nil {
		return nil, false
	}
	if age := time.Now().Sub(time.Unix(authDate, 0)); age > initDataMaxAge || age < -time.Minute {
		return nil, false
	}

	userJSON := params.Get("user")
	if userJSON == "" {
		return nil, false
	}
	var user TelegramUser
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		return nil, false
	}
	return &user, true
}

// signInitData is HMAC-SHA256(dataCheckString, HMAC-SHA256(botToken, "WebAppData")), hex encoded.
func signInitData(dataCheckString, botToken string) string {
	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(botToken))

	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(dataCheckString))
	return hex.EncodeToString(h.Sum(nil))
}

func isAdmin(userID int64, adminIDs []int64) bool {
	for _, id := range adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ClientIP is the caller address without port. Behind a proxy it relies on
// chi's RealIP having rewritten RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
