package i18n

// Message keys. The key doubles as the format string passed to
// message.Printer.Sprintf.
const (
	LangCode = "lang.code"

	ErrNetwork    = "error.network"
	ErrAuth       = "error.auth"
	ErrValidation = "error.validation"
	ErrServer     = "error.server"
	ErrSubmitting = "error.submitting"

	ResourceSite        = "resource.site"
	ResourceRule        = "resource.rule"
	ResourceCertificate = "resource.certificate"
	ResourceAttackLogs  = "resource.attack_logs"
	ResourceDashboard   = "resource.dashboard"
	ResourceMonitor     = "resource.monitor"

	NoticeCreated      = "notice.created"
	NoticeUpdated      = "notice.updated"
	NoticeDeleted      = "notice.deleted"
	NoticeCreateFailed = "notice.create_failed"
	NoticeUpdateFailed = "notice.update_failed"
	NoticeDeleteFailed = "notice.delete_failed"
	NoticeLoadFailed   = "notice.load_failed"
	NoticeLoggedIn     = "notice.logged_in"
	NoticeLoggedOut    = "notice.logged_out"
	NoticePasswordSet  = "notice.password_changed"

	ValidationRequired   = "validation.required"
	ValidationURL        = "validation.url"
	ValidationOneOf      = "validation.one_of"
	ValidationPEM        = "validation.pem"
	ValidationKeyPair    = "validation.key_pair"
	ValidationCondition  = "validation.condition"
	ValidationPasswordLe = "validation.password_length"

	AuthInvalidCredentials = "auth.invalid_credentials"
	AuthTooManyAttempts    = "auth.too_many_attempts"

	ConsoleLoading   = "console.loading"
	ConsoleForbidden = "console.forbidden"
)

type translation struct {
	en string
	zh string
}

var translations = map[string]translation{
	LangCode: {"en", "zh"},

	ErrNetwork:    {"Network error, please check your connection", "网络错误，请检查网络连接"},
	ErrAuth:       {"Your session has expired, please sign in again", "登录已过期，请重新登录"},
	ErrValidation: {"The request was rejected, please check your input", "请求参数有误，请检查输入"},
	ErrServer:     {"Request failed", "请求失败"},
	ErrSubmitting: {"A submission is already in progress", "正在提交，请稍候"},

	ResourceSite:        {"Site", "站点"},
	ResourceRule:        {"Rule", "规则"},
	ResourceCertificate: {"Certificate", "证书"},
	ResourceAttackLogs:  {"Attack logs", "攻击日志"},
	ResourceDashboard:   {"Dashboard", "仪表盘"},
	ResourceMonitor:     {"Monitor", "实时监控"},

	NoticeCreated:      {"%s created", "%s创建成功"},
	NoticeUpdated:      {"%s updated", "%s更新成功"},
	NoticeDeleted:      {"%s deleted", "%s删除成功"},
	NoticeCreateFailed: {"Could not create %s: %s", "%s创建失败：%s"},
	NoticeUpdateFailed: {"Could not update %s: %s", "%s更新失败：%s"},
	NoticeDeleteFailed: {"Could not delete %s: %s", "%s删除失败：%s"},
	NoticeLoadFailed:   {"Could not load %s: %s", "%s加载失败：%s"},
	NoticeLoggedIn:     {"Signed in as %s", "已登录：%s"},
	NoticeLoggedOut:    {"Signed out", "已退出登录"},
	NoticePasswordSet:  {"Password changed", "密码已修改"},

	ValidationRequired:   {"%s is required", "%s不能为空"},
	ValidationURL:        {"Enter a valid URL", "请输入有效的URL地址"},
	ValidationOneOf:      {"Must be one of: %s", "必须是以下之一：%s"},
	ValidationPEM:        {"Not a valid PEM block", "不是有效的PEM内容"},
	ValidationKeyPair:    {"Private key does not match the certificate", "私钥与证书不匹配"},
	ValidationCondition:  {"Condition %d needs a field and an operator", "条件%d需要字段和运算符"},
	ValidationPasswordLe: {"Password must be at least %d characters", "密码长度至少为%d位"},

	AuthInvalidCredentials: {"Invalid username or password", "用户名或密码错误"},
	AuthTooManyAttempts:    {"Too many failed sign-in attempts, try again later", "登录失败次数过多，请稍后再试"},

	ConsoleLoading:   {"Loading...", "加载中..."},
	ConsoleForbidden: {"You do not have permission to view this page", "您没有权限访问此页面"},

	"field.name":            {"Name", "名称"},
	"field.domain":          {"Domain", "域名"},
	"field.description":     {"Description", "描述"},
	"field.action":          {"Action", "动作"},
	"field.status":          {"Status", "状态"},
	"field.certificate":     {"Certificate", "证书内容"},
	"field.privateKey":      {"Private key", "私钥"},
	"field.username":        {"Username", "用户名"},
	"field.password":        {"Password", "密码"},
	"field.newPassword":     {"New password", "新密码"},
	"field.conditions":      {"Conditions", "条件"},
	"field.currentPassword": {"Current password", "当前密码"},
}

// FieldLabel returns the catalog key for a form field label.
func FieldLabel(field string) string {
	return "field." + field
}
