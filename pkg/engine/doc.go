/*
Package engine implements a small, line-oriented HTML templating language.

Every input line is classified on its own into one of four shapes: a plain
literal, a line with {{name}} interpolation placeholders, an if/for directive
written entirely on that line, or an unrecognized mix of markers. Directives
carry a condition and a body, and the body is itself classified, so directives
can nest as deeply as a single line allows.

	{% if name = Bob %} <h1> hello {{name}} </h1> {% endif %}
	{% for customer in names %} <li> {{customer}} </li> {% endfor %}

Rendering is a pure function of the classified line and a read-only Context,
so lines may be processed in any order, or concurrently, with the same
per-line results. The Processor type wraps the classifier and generator with
a line source loop, a per-line error policy and structured logging.
*/
package engine
