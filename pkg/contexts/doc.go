/*
Package contexts stores and loads the variable contexts that templates are
rendered against.

Contexts are kept by name in a SQLite database, with the order of every
variable's values preserved, and can be exported to and imported from JSON.
Contexts can also be decoded from JSON, YAML or TOML documents, or built from
name=value1,value2 assignments given on a command line.
*/
package contexts
