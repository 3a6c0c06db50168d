package classifier

import (
	"fmt"

	"github.com/ignite/opinion-monitor/internal/domain"
)

const promptTemplate = `你是一个专业的舆情分析助手。请判断以下内容是否对医院产生真正的负面影响。

判断标准（以下情况视为负面舆情）：
1. 医疗事故、医疗纠纷
2. 服务态度差、收费不合理
3. 隐私泄露（如患者信息外泄）
4. 医护人员不当行为
5. 设备故障、管理混乱
6. 其他损害医院声誉的事件

特别注意（以下情况不属于负面）：
- 中性医疗报道（如医院开展新技术、学术会议）
- 正面新闻（如医院成功救治患者）
- 常规的医疗科普内容

严重程度判定（severity）：
- high：医疗事故致伤亡、大范围隐私泄露、已被主流媒体转载的恶性事件
- medium：个体投诉纠纷、服务收费争议、尚未扩散的负面报道
- low：轻微抱怨、影响有限的个别差评

舆情信息：
涉及医院: %s
来源: %s
标题: %s
正文: %s

请返回JSON格式（只返回JSON，不要其他内容）:
{
    "is_negative": true/false,
    "reason": "简要说明判断理由（50字以内）",
    "severity": "high/medium/low",
    "title": "内容标题",
    "confidence": 0.0到1.0之间的数值
}`

// buildPrompt fills the classification template. Article bodies arrive
// already truncated by the extractor.
func buildPrompt(a domain.Article) string {
	source := a.Source
	if source == "" {
		source = "未知"
	}
	return fmt.Sprintf(promptTemplate, a.Hospital, source, a.Title, a.Body)
}
