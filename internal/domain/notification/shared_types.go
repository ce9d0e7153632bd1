// internal/domain/notification/shared_types.go
package notification

// Reason tags why an account was, or was not, selected for notification.
type Reason string

const (
	ReasonNotified               Reason = "Notified"
	ReasonNewUser                Reason = "NewUser"
	ReasonNewUserNotNotified     Reason = "NewUserNotNotified"
	ReasonNewUserAlreadyNotified Reason = "NewUserAlreadyNotified"
	ReasonInvalidEmail           Reason = "InvalidEmail"
	ReasonNoPolicy               Reason = "NoPolicy"
	ReasonExpiryUnknown          Reason = "ExpiryUnknown" // Policy applies but the expiry could not be decoded
	ReasonNotExpired             Reason = "NotExpired"
	ReasonNotInInterval          Reason = "NotInInterval"
	ReasonNotInGroup             Reason = "NotInGroup"
	ReasonError                  Reason = "Error"
	ReasonReportOnly             Reason = "ReportOnly" // Selected, but the run does not send
)

// Template is the message variant chosen for a selected account.
type Template string

const (
	TemplateNewUser   Template = "NewUser"
	TemplateExpired   Template = "Expired"
	TemplateToday     Template = "Today"
	TemplateTomorrow  Template = "Tomorrow"
	TemplateInFewDays Template = "InFewDays"
)

// Audience distinguishes accounts whose mailbox is in an internal domain.
type Audience string

const (
	AudienceInternal Audience = "internal"
	AudienceExternal Audience = "external"
)

// Mode is the run-level condition strategy.
type Mode string

const (
	ModeDaysBeforeExpire Mode = "days_before_expire"
	ModeDaysInterval     Mode = "days_interval"
	ModeProcessAll       Mode = "process_all"
)

// RunMode selects what a run is allowed to do.
type RunMode string

const (
	RunModeLive       RunMode = "live"
	RunModeSimulate   RunMode = "simulate"
	RunModeReportOnly RunMode = "report"
)
