package approaches

import "strings"

const querySystemPrompt = `Below is a conversation with a user who is asking questions about the data in a Microsoft SQL Server database, followed by the database schema.
Generate a single T-SQL SELECT statement that retrieves the data needed to answer the user's latest question.
Only reference tables and columns that appear in the schema below.
Prefer to aggregate or filter in the query so only the rows needed for the answer are returned.
Return only the T-SQL statement, with no explanation and no markdown formatting.
If the question cannot be answered by querying the database, return just the word NO_QUERY.

Database schema:
{schema}`

const answerSystemPrompt = `You are an assistant that answers questions about the data in a company's SQL Server database.
Be brief in your answers.
Answer ONLY with the facts listed in the sources below. If there isn't enough information in the sources, say you don't know. Do not generate answers that don't use the sources.
Each source is a JSON object representing one database row.
{follow_up_questions_prompt}{injected_prompt}`

const followUpQuestionsPrompt = `Generate three very brief follow-up questions that the user would likely ask next about their data.
Use double angle brackets to reference the questions, e.g. <<Which customers ordered the most last month?>>.
Try not to repeat questions that have already been asked.
Only generate questions and do not generate any text before or after the questions, such as 'Next Questions'.
`

// renderTemplate substitutes {name} placeholders. The template language
// is shared with user-supplied prompt overrides, so it stays this small.
func renderTemplate(template string, vars map[string]string) string {
	out := template
	for name, value := range vars {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

// buildAnswerSystemPrompt resolves the answer step's system prompt against
// the request override: empty uses the default, a ">>>" prefix injects
// extra instructions into the default, anything else replaces it outright.
func buildAnswerSystemPrompt(override string, suggestFollowup bool) string {
	followup := ""
	if suggestFollowup {
		followup = followUpQuestionsPrompt
	}

	switch {
	case override == "":
		return renderTemplate(answerSystemPrompt, map[string]string{
			"follow_up_questions_prompt": followup,
			"injected_prompt":            "",
		})
	case strings.HasPrefix(override, ">>>"):
		return renderTemplate(answerSystemPrompt, map[string]string{
			"follow_up_questions_prompt": followup,
			"injected_prompt":            strings.TrimSpace(override[3:]) + "\n",
		})
	default:
		return renderTemplate(override, map[string]string{
			"follow_up_questions_prompt": followup,
		})
	}
}
