package browser

import "strings"

// FormatUnavailableHint renders the Japanese-localizable guidance message
// spec §4.1 requires for SharedBrowserUnavailable, naming every attempted
// candidate. Grounded verbatim on original_source/agent/utils/
// shared_browser.py's format_shared_browser_error.
func FormatUnavailableHint(reason string, candidates []string) string {
	var nonEmpty []string
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	candidateHint := "http://vnc:9222 (デフォルト)"
	if len(nonEmpty) > 0 {
		candidateHint = strings.Join(nonEmpty, "、")
	}
	guidance := "VNC サービス (例: http://vnc:9222) が起動し `/json/version` にアクセスできるか確認してください。" +
		"Docker Compose を利用している場合は `docker compose ps vnc` で稼働状況を確認し、必要に応じて `docker compose up -d vnc` で再起動してください。" +
		"接続先を変更する場合は BROWSER_USE_CDP_URL / VNC_CDP_URL / CDP_URL を設定してください。"
	return "ライブビューのブラウザに接続できないため実行できません。" +
		reason + "。試行した CDP エンドポイント: " + candidateHint + "。" + guidance
}
