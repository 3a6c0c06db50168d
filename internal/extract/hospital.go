package extract

import (
	"regexp"
	"strings"

	"github.com/ignite/opinion-monitor/internal/domain"
)

// Vendor mails carry a labelled line naming the monitored program; the
// program name is the hospital.
var hospitalBodyPattern = regexp.MustCompile(`以下是(.*?)方案的网路舆情信息`)

// Subject fallbacks, tried in order. Tuned for hospital-suffix tokens in
// vendor subject lines like "【舆情预警】北京协和医院 负面信息 3 条".
var hospitalSubjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`([\p{Han}]{2,20}(?:医院|卫生院|保健院|医疗中心|诊所))`),
	regexp.MustCompile(`【(.*?)】`),
}

// ParseHospital extracts the hospital name from a vendor mail, preferring the
// labelled body line over subject heuristics. Returns 未知 when nothing
// matches.
func ParseHospital(body, subject string) string {
	if m := hospitalBodyPattern.FindStringSubmatch(body); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			return name
		}
	}
	for _, pat := range hospitalSubjectPatterns {
		if m := pat.FindStringSubmatch(subject); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				return name
			}
		}
	}
	return domain.UnknownHospital
}
