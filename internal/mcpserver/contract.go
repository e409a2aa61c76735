package mcpserver

// DocumentFormatContract describes the frontmatter ORBIT reads when it
// reconciles a document. LLM consumers should follow it when writing notes
// into the vault.
const DocumentFormatContract = `# ORBIT Document Format Contract

Every Markdown document the reconciler places MUST start with YAML
frontmatter. Documents without frontmatter are left where they are.

## Structure

` + "```" + `markdown
---
type: dust                     # OPTIONAL – project | source | dust | domain
domain: Health                 # OPTIONAL – category hint: name, "200", or "200-Health"
orbits:                        # REQUIRED for placement – groupings this document belongs to
  - Yoga
satellites:                    # OPTIONAL – member documents to create when missing
  - Breathing
direct: Yoga                   # OPTIONAL – which orbit decides the folder; "*" means the first
created: 2025-01-15            # OPTIONAL – ISO-8601 date
---

Body text in standard Markdown.
` + "```" + `

## Rules

1. **Frontmatter fences** (` + "`" + `---` + "`" + `) must be the first thing in the file.
2. **Orbits** name groupings by plain name (` + "`" + `Yoga` + "`" + `), designated folder
   (` + "`" + `210-Yoga` + "`" + `) or category (` + "`" + `Health` + "`" + `, ` + "`" + `200-Health` + "`" + `).
   Wiki-link form (` + "`" + `[[Yoga]]` + "`" + `) is accepted.
3. **Unknown groupings** are created as floating projects under the category's
   ` + "`" + `.0-inbox/` + "`" + ` with ` + "`" + `0-inbox/` + "`" + ` and ` + "`" + `9-source/` + "`" + ` subfolders.
4. **Placement**: sources go to ` + "`" + `9-source/` + "`" + `, everything else to ` + "`" + `0-inbox/` + "`" + `
   of the selected grouping. Orbiting a category places the document in its
   ` + "`" + `.0-inbox/` + "`" + `.
5. **Young documents** stay put until they reach the configured minimum age.
6. **Project and domain dashboards** named after their own folder are never moved.
7. **File names** end with ` + "`" + `.md` + "`" + `, use forward slashes, and must not start with a dot.

## Example

` + "```" + `markdown
---
type: source
domain: 200-Health
orbits:
  - "[[Yoga]]"
  - Breathing
direct: Breathing
---

# Box breathing

Four counts in, hold, out, hold.
` + "```" + `
`
