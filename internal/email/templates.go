package email

import (
	"fmt"
	"time"
)

// PasswordResetMessage builds the notification mail for a reset ticket.
// The raw ticket token appears only here and in the recipient's inbox.
func PasswordResetMessage(appName, username, to, token string, ttl time.Duration) Message {
	ttlMinutes := int(ttl.Minutes())
	return Message{
		To:       to,
		Subject:  fmt.Sprintf("%s password reset", appName),
		HTMLBody: passwordResetHTML(appName, username, token, ttlMinutes),
		TextBody: passwordResetText(appName, username, token, ttlMinutes),
	}
}

func passwordResetHTML(appName, username, token string, ttlMinutes int) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Reset your password</title>
</head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Helvetica,Arial,sans-serif;background-color:#0f1020;">
<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#0f1020;padding:40px 0;">
<tr><td align="center">
<table width="480" cellpadding="0" cellspacing="0" style="background-color:#1a1b2e;border-radius:8px;overflow:hidden;">
  <tr><td style="padding:32px 40px 24px;text-align:center;">
    <h1 style="margin:0;font-size:24px;color:#e4e4f0;">Reset your password</h1>
  </td></tr>
  <tr><td style="padding:0 40px;">
    <p style="margin:0 0 24px;font-size:15px;color:#a0a0c0;line-height:1.6;">
      Hi <strong>%s</strong>, someone asked to reset the password for your <strong>%s</strong> account.
      Use the code below to choose a new password.
    </p>
  </td></tr>
  <tr><td style="padding:0 40px;text-align:center;">
    <div style="display:inline-block;background-color:#10112a;border:2px dashed #6c63ff;border-radius:8px;padding:16px 24px;margin:0 0 24px;">
      <span style="font-family:'Courier New',monospace;font-size:14px;word-break:break-all;color:#e4e4f0;">%s</span>
    </div>
  </td></tr>
  <tr><td style="padding:0 40px 32px;">
    <p style="margin:0;font-size:13px;color:#70708c;line-height:1.5;">
      This code expires in <strong>%d minutes</strong> and works exactly once.
      If you didn't ask for a reset, you can safely ignore this email.
    </p>
  </td></tr>
  <tr><td style="padding:16px 40px;background-color:#14152a;border-top:1px solid #24254a;">
    <p style="margin:0;font-size:12px;color:#55557a;text-align:center;">
      &copy; %s &mdash; This is an automated message, please do not reply.
    </p>
  </td></tr>
</table>
</td></tr>
</table>
</body>
</html>`, username, appName, token, ttlMinutes, appName)
}

func passwordResetText(appName, username, token string, ttlMinutes int) string {
	return fmt.Sprintf(`Reset your password

Hi %s, someone asked to reset the password for your %s account.
Use the code below to choose a new password.

Your reset code: %s

This code expires in %d minutes and works exactly once. If you didn't
ask for a reset, you can safely ignore this email.

- %s`, username, appName, token, ttlMinutes, appName)
}
