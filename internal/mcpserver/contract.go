package mcpserver

// EnrichedFormat describes the fields enrichment adds to each comment.
const EnrichedFormat = `# Enriched Comment Format

Enrichment keeps every field of the incoming comment unchanged and adds:

| Field            | Type              | Meaning |
|------------------|-------------------|---------|
| ` + "`frameName`" + `      | string            | Name of the top-level container under the page, or the fallback label |
| ` + "`frameId`" + `        | string or null    | Id of that container; null when the comment could not be placed |
| ` + "`resolvedNodeId`" + ` | string or null    | Node the placement was computed from |
| ` + "`hierarchy`" + `      | array             | Ancestor path, root first, ending with the anchored node |
| ` + "`threadId`" + `       | string            | ` + "`parent_id`" + ` for replies, otherwise the comment's own id |
| ` + "`isReply`" + `        | bool              | True when ` + "`parent_id`" + ` is set |

Each hierarchy entry is ` + "`{\"name\", \"id\", \"type\"}`" + `.

## Placement rules

1. A comment anchored to a node (` + "`client_meta.node_id`" + `, else
   ` + "`client_meta.node_offset.node_id`" + `) is placed by walking up from
   that node until the page. The outermost container below the page is the
   frame.
2. A reply without its own anchor inherits the placement of its parent when
   the parent appears in the context set.
3. Anything else gets the fallback label (default "Other"), a null
   ` + "`frameId`" + ` and an empty hierarchy.
4. A node placed directly on a page is its own frame with an empty hierarchy.

## Example

` + "```" + `json
{
  "id": "101",
  "message": "Agreed",
  "parent_id": "100",
  "frameName": "Checkout",
  "frameId": "1:0",
  "resolvedNodeId": "1:3",
  "hierarchy": [
    {"name": "Checkout", "id": "1:0", "type": "SECTION"},
    {"name": "Cart", "id": "1:1", "type": "FRAME"},
    {"name": "Total", "id": "1:3", "type": "TEXT"}
  ],
  "threadId": "100",
  "isReply": true
}
` + "```" + `
`
