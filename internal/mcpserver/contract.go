package mcpserver

// DatasetFormatContract describes the dataset CSV file that LLM consumers
// read and label through the tools.
const DatasetFormatContract = `# Laguz Dataset Format

The dataset is a single CSV file in the dataset directory (default
` + "`dataset.csv`" + `). One row per image.

## Columns

| column        | meaning                                                  |
|---------------|----------------------------------------------------------|
| folder_path   | folder of the image relative to the dataset directory, "." for the root |
| image_id      | image file name                                          |
| class         | stored label                                             |

Rows are ordered by folder, then by class, then by file name.

## Class encodings

- ` + "`unset`" + ` - the image has not been labeled yet.
- a bare identifier, e.g. ` + "`fire`" + ` - exactly one label.
- a list literal, e.g. ` + "`['fire', 'smoke']`" + ` - two or more labels.
  Lists written by Laguz follow vocabulary order. A stored list whose
  identifiers are unchanged keeps its order.

Identifiers come from the vocabulary (resource ` + "`laguz://vocabulary`" + `).
Index 0 is the background label. Depending on configuration it is dropped
when other labels are checked, and an empty selection is stored either as
` + "`unset`" + ` or as the background label.

Identifiers unknown to the vocabulary are kept as they are.

## Workflow

1. ` + "`dataset_stats`" + ` or ` + "`list_rows`" + ` to look at the data.
2. ` + "`set_label`" + ` with a row index and comma-separated identifiers.
3. ` + "`save_dataset`" + ` to write the file. With ` + "`session.autosave`" + ` enabled the
   file is also written whenever the session moves to another row.
4. ` + "`close_session`" + ` when done.
`
