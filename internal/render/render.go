// Package render builds the HTML bodies the bot posts to the forum.
package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"forum-bot-service/internal/models"
)

const JokeEmoticonURL = "https://forum.wrestling.pl/uploads/emoticons/leo.png"

var templates = template.Must(template.New("render").Funcs(template.FuncMap{
	"rank": func(i int) int { return i + 1 },
}).Parse(`
{{define "leaderboard"}}<style type="text/css">
table { max-width: calc(100% - 20px); border-collapse: collapse; margin-left: auto; margin-right: auto; }
th, td { padding: 8px 10px; text-align: left; border: 1px solid black; }
th { font-weight: bold; }
</style>
<table>
<thead><tr><th>User</th><th>Punkty</th></tr></thead>
<tbody>
{{range $i, $s := .}}{{$r := rank $i}}<tr><td>{{if eq $r 1}}<strong><span style="color:#e67e22;">{{$s.UserName}}</span></strong>{{else if eq $r 2}}<strong><span style="color:#7f8c8d;">{{$s.UserName}}</span></strong>{{else if eq $r 3}}<span style="color:#330000;"><strong>{{$s.UserName}}</strong></span>{{else}}{{$s.UserName}}{{end}}</td><td>Liczba punktów {{$s.Score}}</td></tr>
{{end}}</tbody>
</table>{{end}}

{{define "correct"}}<p style="text-align: justify;">Gratulacje {{.Username}}! Poprawna odpowiedź na pytanie dotyczyła "{{.Question}}".</p>
{{.Table}}
<p style="text-align: justify;"><strong>Podaj kategorię następnego pytania!</strong><br>
Możesz wybrać dowolną kategorię związaną z wrestlingiem, np.:<br>
- Historia konkretnej federacji<br>
- Biografia wybranego wrestlera<br>
- Konkretna era wrestlingu<br>
- Gale pay-per-view<br>
- Stajnie i tag teamy<br>
- i wiele innych!</p>{{end}}

{{define "hint"}}<p style="text-align: center;"><span style="font-size:22px;"><strong>Podpowiedź</strong></span><br>&nbsp;</p>
<p style="text-align: justify;">{{.}}</p>{{end}}

{{define "joke"}}<p style="text-align: justify;">Niestety nie udzieliłeś poprawnej odpowiedzi. Na pocieszenie opowiadam kawał:</p>
<p style="text-align: justify;">{{.Joke}}&nbsp;<img alt=":leo:" data-emoticon="true" loading="lazy" src="{{.Emoticon}}" style="width: 40px; height: auto;" title=":leo:"></p>{{end}}
`))

// Reply wraps model output for posting; newlines become line breaks
func Reply(text string) string {
	formatted := strings.ReplaceAll(text, "\n", "<br>")
	return `<div><p style="text-align: justify;">` + formatted + `</p></div>`
}

// Leaderboard renders scores in the given order with the top three highlighted
func Leaderboard(scores []models.QuizScore) (string, error) {
	return execute("leaderboard", scores)
}

// CorrectAnswer renders the congratulation, the leaderboard and the next-category prompt
func CorrectAnswer(username, question string, scores []models.QuizScore) (string, error) {
	table, err := Leaderboard(scores)
	if err != nil {
		return "", err
	}
	return execute("correct", struct {
		Username string
		Question string
		Table    template.HTML
	}{username, question, template.HTML(table)})
}

// Hint renders a quiz hint. The hint text is trusted model output and kept as markup.
func Hint(hint string) (string, error) {
	return execute("hint", template.HTML(hint))
}

// Joke renders the consolation message posted when no hint can be produced
func Joke(joke string) (string, error) {
	return execute("joke", struct {
		Joke     template.HTML
		Emoticon string
	}{template.HTML(joke), JokeEmoticonURL})
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", name, err)
	}
	return buf.String(), nil
}
