package duckduckgo

var UnwrapLink = unwrapLink
