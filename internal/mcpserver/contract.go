package mcpserver

// FlatFormatContract describes the flat text form that LLM consumers should
// follow when reading or producing document text.
const FlatFormatContract = `# nbsync Flat Format Contract

Every flat document produced or consumed by the sync pass MUST follow this
structure.

## Structure

` + "```" + `python
# %% nb-hash=3f2a9c1d4e5b6a7f8091a2b3c4d5e6f7

"""
Narrative text lives inside a triple-double-quoted block.
It round-trips as a markdown cell.
"""

# %%
import pandas as pd
df = pd.read_csv("data.csv")

# %%
df.describe()
` + "```" + `

## Rules

1. **The header line comes first.** ` + "`" + `# %% nb-hash=<32 hex chars>` + "`" + ` carries the
   fingerprint of the structured form this text was rendered from. Never edit
   or remove it; the sync pass uses it to decide which side changed.
2. **Blocks are separated by a line reading exactly** ` + "`" + `# %%` + "`" + `.
3. **Executable blocks** hold plain source code. An empty block is legal and
   is preserved.
4. **Narrative blocks** are wrapped in ` + "`" + `"""` + "`" + ` fences as the block's first and
   last characters. The text between the fences becomes a markdown cell.
5. **Narrative text must not itself contain** ` + "`" + `"""` + "`" + ` and no block may contain
   a line reading ` + "`" + `# %%` + "`" + `; there is no escaping.
6. **Encoding** is UTF-8.
7. Leading and trailing blank lines around a block are insignificant.

## Editing workflow

- Read a document with the ` + "`" + `read_document` + "`" + ` tool, edit block contents, keep
  the header line intact.
- After writing the flat file back, run ` + "`" + `sync_documents` + "`" + ` so the structured
  form catches up and the header fingerprint is refreshed.
- If both forms changed since the last pass, the sync reports a conflict and
  the structured form wins; check ` + "`" + `get_sync_history` + "`" + ` for the outcome.
`
