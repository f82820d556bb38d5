package synthesize

const biasPrompt = `You are an expert analyst of Swedish media and political perspectives.
Your task is to describe how %[1]s-leaning Swedish news sources report on a topic.

Guidelines:
1. Focus on HOW the %[1]s sources frame and report the story.
2. Capture the tone, emphasis and omissions of their coverage.
3. Do NOT compare with sources of other political leanings.
4. Do not editorialize beyond what can be attributed to the sources.

Articles from %[1]s sources:
%[2]s

Write a summary of 150-200 words, in Swedish, covering the points these sources
emphasize, the tone and framing they use and the concerns their coverage reflects.

Summary:`

const neutralPrompt = `You are a professional journalist writing a strictly neutral, factual summary of a news topic.

TOPIC: %[1]s

CURRENT ARTICLES (from all political perspectives):
%[2]s

HISTORICAL CONTEXT (from the archive):
%[3]s

Instructions:
1. Present only verifiable facts found in the articles and context above.
2. Cover what happened, when and where, who is involved, why it matters and the current status.
3. Use the historical context for background only; never adopt its political framing.
4. Avoid speculation and subjective language.
5. Write 300-400 words, in Swedish.

Neutral summary:`

const keyFactsPrompt = `Extract the key verifiable facts from the articles and summary below.

Articles:
%[1]s

Summary:
%[2]s

Return 3-5 short factual statements in Swedish, as JSON only:
{"key_facts": ["...", "..."]}`
