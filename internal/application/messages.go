package application

import (
	"fmt"
	"strings"

	"github.com/ericfisherdev/seewatch/internal/domain/model"
)

// NoticeMessage renders newly published notices.
func NoticeMessage(notices []model.Notice) model.Message {
	if len(notices) == 0 {
		return model.Message{Kind: model.MessageKindNotices}
	}

	items := make([]string, 0, len(notices))
	lines := make([]string, 0, len(notices))
	for _, n := range notices {
		items = append(items, fmt.Sprintf("- [%s](%s)", escapeLinkText(n.Title), n.URL))
		lines = append(lines, n.Title)
	}

	return model.Message{
		Kind:       model.MessageKindNotices,
		Count:      len(notices),
		Title:      "学院已发布新的通知/公告",
		Short:      fmt.Sprintf(`"%s"等%d条通知/公告`, notices[0].Title, len(notices)),
		Body:       "# 通知/公告列表\n\n" + strings.Join(items, "\n"),
		LocalTitle: fmt.Sprintf("学院已发布%d条新的通知/公告", len(notices)),
		Lines:      lines,
		Tags:       "同济大学|通知",
	}
}

// LectureMessage renders newly listed lectures as a markdown table.
func LectureMessage(lectures []model.Lecture) model.Message {
	if len(lectures) == 0 {
		return model.Message{Kind: model.MessageKindLectures}
	}

	var body strings.Builder
	body.WriteString("|主题|级别|主讲人|时间|\n|:-:|:-:|:-:|:-:|")
	lines := make([]string, 0, len(lectures))
	for _, l := range lectures {
		fmt.Fprintf(&body, "\n|%s|%s|%s|%s|", cell(l.Title), cell(l.Level), cell(l.Speaker), cell(l.Time))
		lines = append(lines, l.Title)
	}

	return model.Message{
		Kind:       model.MessageKindLectures,
		Count:      len(lectures),
		Title:      "找到新的同济大讲堂",
		Short:      fmt.Sprintf(`"%s"等%d条同济大讲堂`, lectures[0].Title, len(lectures)),
		Body:       body.String(),
		LocalTitle: fmt.Sprintf("找到%d条新的同济大讲堂", len(lectures)),
		Lines:      lines,
		Tags:       "同济大学|同济大讲堂",
	}
}

// FailureMessage renders a failed run so it can be reported through the fanout.
func FailureMessage(err error) model.Message {
	text := err.Error()
	return model.Message{
		Kind:       model.MessageKindFailure,
		Count:      1,
		Title:      "seewatch 运行失败",
		Short:      truncateRunes(text, 64),
		Body:       "```\n" + text + "\n```",
		LocalTitle: "seewatch 运行失败",
		Lines:      []string{text},
		Tags:       "同济大学|错误",
	}
}

// cell keeps a value from breaking out of its markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}

func escapeLinkText(s string) string {
	r := strings.NewReplacer("[", `\[`, "]", `\]`)
	return r.Replace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
