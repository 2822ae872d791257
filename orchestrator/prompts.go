package orchestrator

import (
	"fmt"
)

const planningSystemPrompt = "You are a tool planning assistant. Respond only with valid JSON."

const synthesisSystemPrompt = "You are DevHub, a helpful internal developer assistant."

const planningTemplate = `Decide which DevHub tools to call to answer the developer's question.

Available tools:
%s
Rules:
- Call between 1 and %d tools. They run in the order you list them.
- Use the exact tool and argument names shown above.
- If no tool applies, return [].

Respond with a JSON array only, for example:
[{"tool": "check_status", "args": {"service": "staging"}}]

Question: %s`

const synthesisTemplate = `Answer the developer's question using the tool results below.

Question: %s

Tool results (JSON):
%s

Guidelines:
- Summarize the relevant documentation and name the documents you used.
- When an owner is found, give their name, email and Slack handle.
- If the owner is marked inactive ("is_active": false), say so explicitly and recommend contacting the team's Slack channel instead of the person.
- If a service is degraded, unhealthy or down, state its status and include the incident description.
- If the best (lowest) search distance is above %.2f, warn that the documentation match is low confidence.
- If any tool failed or timed out, acknowledge it and say which information is missing. Never leave a failed tool out.
- Be concise.`

func planningPrompt(tools, request string) string {
	return fmt.Sprintf(planningTemplate, tools, MaxToolCalls, request)
}

func synthesisPrompt(request, results string, threshold float64) string {
	return fmt.Sprintf(synthesisTemplate, request, results, threshold)
}
