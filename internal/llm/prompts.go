package llm

// compareStatesPrompt asks for a semantic comparison of prior/candidate
// state pairs in one call. The pairs are appended as a JSON array.
const compareStatesPrompt = `You compare business entity states extracted from meeting transcripts.

For each pair below, decide whether the candidate state represents a real semantic change from the prior state. Ignore wording differences that carry the same meaning (e.g. "done" vs "completed", rephrased blockers). A field that appears or disappears IS a change.

Respond with a JSON object:
{"comparisons": [{"index": 0, "has_changed": true, "changed_fields": ["status"], "reason": "short explanation of what moved and why"}]}

Return exactly one comparison per input pair, using the pair's index. Respond with JSON only.

Pairs:
`

// refineReasonPrompt asks for a one-sentence business explanation of a
// state transition, given the transcript context.
const refineReasonPrompt = `You explain why a tracked business entity changed state, based on meeting evidence.

Write one short sentence describing the business reason for the change below. Be specific; quote the deciding factor when the excerpts contain one. If the excerpts do not explain the change, describe the change itself.

Respond with a JSON object: {"reason": "the sentence"}

`
